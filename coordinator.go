package fxp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// TransferResult holds the final replies of both sides of an FXP
// transfer. Both fields are populated only when both servers reported
// completion; on failure, whichever side's reply is known is still
// filled in so the caller can decide about cleanup.
type TransferResult struct {
	// Source is the final reply of the server the file was read from.
	Source *Reply

	// Destination is the final reply of the server the file was written to.
	Destination *Reply
}

// negotiation variants; a coordinator latches onto one and refuses the
// other afterwards, since mixing CPSV and SSCN against the same pair is
// undefined server-side.
type fxpVariant int

const (
	variantNone fxpVariant = iota
	variantCPSV
	variantSSCN
)

func (v fxpVariant) String() string {
	switch v {
	case variantCPSV:
		return "CPSV"
	case variantSSCN:
		return "SSCN"
	}
	return "none"
}

// Coordinator drives a server-to-server (FXP) file transfer between two
// live, authenticated sessions. File bytes flow directly between the two
// servers; the coordinator only exchanges control-channel commands.
//
// The coordinator borrows the sessions: it never dials, closes, or
// re-authenticates them. Each transfer handles exactly one path pair.
type Coordinator struct {
	src *Session
	dst *Session

	logger *slog.Logger

	mu      sync.Mutex
	variant fxpVariant
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger for orchestration-level events.
// Per-command logging stays with each session's own logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator pairs a source session (the server holding the file)
// with a destination session (the server receiving it).
func NewCoordinator(source, destination *Session, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		src:    source,
		dst:    destination,
		logger: source.logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// latch pins the coordinator to one negotiation variant.
func (c *Coordinator) latch(v fxpVariant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.variant != variantNone && c.variant != v {
		return fmt.Errorf("fxp: coordinator already negotiated via %s; mixing %s on the same pair is undefined", c.variant, v)
	}

	c.variant = v
	return nil
}

// TransferCPSV runs one FXP transfer using the CPSV negotiation variant:
//
//  1. PROT P on the source if data protection is not already active.
//  2. CPSV on the source; parse the address/port tuple from the reply.
//  3. PORT on the destination with the re-encoded tuple.
//  4. STOR on the destination, then RETR on the source. The destination
//     must be listening before the source starts sending.
//  5. Wait for both completion replies concurrently; each side must
//     report exactly 226.
//
// Cancelling ctx aborts the completion waits and is classified as a
// failure on whichever side had not completed.
func (c *Coordinator) TransferCPSV(ctx context.Context, sourcePath, destinationPath string) (*TransferResult, error) {
	if err := c.latch(variantCPSV); err != nil {
		return nil, err
	}

	if !c.src.DataProtected() {
		if err := c.src.Secure().SetProtection(ProtPrivate); err != nil {
			return nil, err
		}
	}

	reply, err := c.src.Secure().PassiveProtected()
	if err != nil {
		return nil, err
	}

	addr, err := ParsePassiveReply(reply.String())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fxp negotiated", "variant", "CPSV", "data_addr", addr.Addr())

	return c.runTransfer(ctx, addr, sourcePath, destinationPath)
}

// TransferSSCN runs one FXP transfer using the SSCN negotiation variant:
// the source is told to act as the TLS server for the data handshake
// (SSCN OFF), the destination as the TLS client (SSCN ON), and the data
// port is obtained with a plain PASV on the source. From the PORT step on
// the flow is identical to TransferCPSV.
func (c *Coordinator) TransferSSCN(ctx context.Context, sourcePath, destinationPath string) (*TransferResult, error) {
	if err := c.latch(variantSSCN); err != nil {
		return nil, err
	}

	// SSCN presumes PROT P on both ends.
	for _, s := range []*Session{c.src, c.dst} {
		if !s.DataProtected() {
			if err := s.Secure().SetProtection(ProtPrivate); err != nil {
				return nil, err
			}
		}
	}

	if err := c.src.Secure().ToggleSSCN(false); err != nil {
		return nil, err
	}
	if err := c.dst.Secure().ToggleSSCN(true); err != nil {
		return nil, err
	}

	reply, err := c.src.PassivePort()
	if err != nil {
		return nil, err
	}

	addr, err := ParsePassiveReply(reply.String())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fxp negotiated", "variant", "SSCN", "data_addr", addr.Addr())

	return c.runTransfer(ctx, addr, sourcePath, destinationPath)
}

// runTransfer relays the data address to the destination, starts both
// sides in the required order, and collects completion.
func (c *Coordinator) runTransfer(ctx context.Context, addr *PassiveAddr, sourcePath, destinationPath string) (*TransferResult, error) {
	if err := c.dst.ActivePort(addr.PortSpec()); err != nil {
		return nil, err
	}

	if _, err := c.dst.PrepareStore(destinationPath); err != nil {
		return nil, &TransferError{Side: SideDestination, Err: err}
	}

	if _, err := c.src.PrepareRetrieve(sourcePath); err != nil {
		return nil, &TransferError{Side: SideSource, Err: err}
	}

	c.logger.Debug("fxp transfer started",
		"source_path", sourcePath, "destination_path", destinationPath)

	return c.awaitBoth(ctx)
}

// awaitBoth waits for both completion replies. The two waits run
// concurrently: either server may finish first and the slower one may be
// streaming for a long time, so serializing them would head-of-line-block
// the fast completion behind the slow session's read.
func (c *Coordinator) awaitBoth(ctx context.Context) (*TransferResult, error) {
	type wait struct {
		reply *Reply
		err   error
	}

	var srcWait, dstWait wait
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		srcWait.reply, srcWait.err = c.src.AwaitCompletion()
	}()
	go func() {
		defer wg.Done()
		dstWait.reply, dstWait.err = c.dst.AwaitCompletion()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force the blocked reads to return; the affected sides surface
		// deadline errors and are classified as failed below.
		c.src.interruptRead()
		c.dst.interruptRead()
		<-done
	}

	result := &TransferResult{Source: srcWait.reply, Destination: dstWait.reply}

	// Only the first three characters of the first reply line matter, and
	// only 226 is completion: a stray 250 here is still a failure.
	if err := completionError(SideSource, srcWait.reply, srcWait.err); err != nil {
		return result, err
	}
	if err := completionError(SideDestination, dstWait.reply, dstWait.err); err != nil {
		return result, err
	}

	c.logger.Debug("fxp transfer complete",
		"source_code", result.Source.Code, "destination_code", result.Destination.Code)

	return result, nil
}

func completionError(side Side, reply *Reply, err error) error {
	if err != nil {
		return &TransferError{Side: side, Err: err}
	}
	if !reply.TransferComplete() {
		return &TransferError{Side: side, Reply: reply}
	}
	return nil
}
