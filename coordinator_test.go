package fxp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func cpsvSourceScript(finalReply string) []scriptStep {
	return []scriptStep{
		{expect: "PROT P", reply: "200 Protection set to Private"},
		{expect: "CPSV", reply: "227 Entering Passive Mode (127,0,0,1,217,168)"},
		{expect: "TYPE I", reply: "200 Type set to I"},
		{expect: "RETR /out/file.bin", reply: "150 Opening BINARY mode data connection"},
		{reply: finalReply, delay: 50 * time.Millisecond},
	}
}

func cpsvDestinationScript(finalReply string) []scriptStep {
	return []scriptStep{
		{expect: "PORT 127,0,0,1,217,168", reply: "200 PORT command successful"},
		{expect: "TYPE I", reply: "200 Type set to I"},
		{expect: "STOR /in/file.bin", reply: "150 Opening BINARY mode data connection"},
		{reply: finalReply, delay: 10 * time.Millisecond},
	}
}

func TestTransferCPSV(t *testing.T) {
	src, srcSrv := dialScript(t, cpsvSourceScript("226 Transfer complete"))
	dst, dstSrv := dialScript(t, cpsvDestinationScript("226 File receive OK"))

	coord := NewCoordinator(src, dst)

	result, err := coord.TransferCPSV(context.Background(), "/out/file.bin", "/in/file.bin")
	if err != nil {
		t.Fatalf("TransferCPSV: %v", err)
	}

	if result.Source == nil || result.Destination == nil {
		t.Fatalf("result not fully populated: %+v", result)
	}
	if result.Source.Code != 226 || result.Source.Text != "Transfer complete" {
		t.Errorf("source reply = %d %q", result.Source.Code, result.Source.Text)
	}
	if result.Destination.Code != 226 || result.Destination.Text != "File receive OK" {
		t.Errorf("destination reply = %d %q", result.Destination.Code, result.Destination.Text)
	}

	// The source negotiates and reads, in order.
	wantSrc := []string{"PROT P", "CPSV", "TYPE I", "RETR /out/file.bin"}
	assertCommands(t, "source", srcSrv.commands(), wantSrc)

	// The destination gets the re-encoded tuple and its STOR before the
	// source's RETR was even possible.
	wantDst := []string{"PORT 127,0,0,1,217,168", "TYPE I", "STOR /in/file.bin"}
	assertCommands(t, "destination", dstSrv.commands(), wantDst)
}

func TestTransferCPSV_SourceFailure(t *testing.T) {
	src, _ := dialScript(t, cpsvSourceScript("426 Connection closed; transfer aborted."))
	dst, _ := dialScript(t, cpsvDestinationScript("226 File receive OK"))

	coord := NewCoordinator(src, dst)

	result, err := coord.TransferCPSV(context.Background(), "/out/file.bin", "/in/file.bin")
	if err == nil {
		t.Fatal("expected source-side error for 426 completion")
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransferError", err)
	}
	if te.Side != SideSource {
		t.Errorf("side = %v, want source", te.Side)
	}
	if te.Reply == nil || te.Reply.Code != 426 {
		t.Errorf("reply = %+v, want code 426", te.Reply)
	}

	// The destination's completion is still exposed so the caller can
	// decide whether to clean up the received file.
	if result == nil {
		t.Fatal("partial result suppressed")
	}
	if result.Destination == nil || result.Destination.Code != 226 {
		t.Errorf("destination reply = %+v, want 226", result.Destination)
	}
	if result.Source == nil || result.Source.Code != 426 {
		t.Errorf("source reply = %+v, want 426", result.Source)
	}
}

func TestTransferCPSV_Not226IsFailure(t *testing.T) {
	// 250 is a success code, but it is not "transfer complete".
	src, _ := dialScript(t, cpsvSourceScript("250 Requested file action okay"))
	dst, _ := dialScript(t, cpsvDestinationScript("226 File receive OK"))

	coord := NewCoordinator(src, dst)

	_, err := coord.TransferCPSV(context.Background(), "/out/file.bin", "/in/file.bin")

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransferError", err)
	}
	if te.Side != SideSource || te.Reply.Code != 250 {
		t.Errorf("got side %v code %d, want source/250", te.Side, te.Reply.Code)
	}
}

func TestTransferCPSV_MalformedPassiveReply(t *testing.T) {
	src, _ := dialScript(t, []scriptStep{
		{expect: "PROT P", reply: "200 Protection set to Private"},
		{expect: "CPSV", reply: "227 Entering Passive Mode (1,2,3,4,5)"},
	})
	dst, dstSrv := dialScript(t, nil)

	coord := NewCoordinator(src, dst)

	_, err := coord.TransferCPSV(context.Background(), "/out/a", "/in/a")

	var ne *NegotiationError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NegotiationError", err)
	}

	// Fail fast: the garbage tuple never reaches the destination.
	if got := dstSrv.commands(); len(got) != 0 {
		t.Errorf("destination received %q, want nothing", got)
	}
}

func TestTransferSSCN(t *testing.T) {
	src, srcSrv := dialScript(t, []scriptStep{
		{expect: "PROT P", reply: "200 Protection set to Private"},
		{expect: "SSCN OFF", reply: "200 SSCN:SERVER METHOD OFF"},
		{expect: "PASV", reply: "227 Entering Passive Mode (127,0,0,1,4,8)"},
		{expect: "TYPE I", reply: "200 Type set to I"},
		{expect: "RETR /out/big.iso", reply: "150 Opening BINARY mode data connection"},
		{reply: "226 Transfer complete", delay: 20 * time.Millisecond},
	})
	dst, dstSrv := dialScript(t, []scriptStep{
		{expect: "PROT P", reply: "200 Protection set to Private"},
		{expect: "SSCN ON", reply: "200 SSCN:CLIENT METHOD ON"},
		{expect: "PORT 127,0,0,1,4,8", reply: "200 PORT command successful"},
		{expect: "TYPE I", reply: "200 Type set to I"},
		{expect: "STOR /in/big.iso", reply: "150 Opening BINARY mode data connection"},
		{reply: "226 File receive OK", delay: 10 * time.Millisecond},
	})

	coord := NewCoordinator(src, dst)

	result, err := coord.TransferSSCN(context.Background(), "/out/big.iso", "/in/big.iso")
	if err != nil {
		t.Fatalf("TransferSSCN: %v", err)
	}
	if result.Source.Code != 226 || result.Destination.Code != 226 {
		t.Errorf("replies = %d/%d, want 226/226", result.Source.Code, result.Destination.Code)
	}

	assertCommands(t, "source", srcSrv.commands(),
		[]string{"PROT P", "SSCN OFF", "PASV", "TYPE I", "RETR /out/big.iso"})
	assertCommands(t, "destination", dstSrv.commands(),
		[]string{"PROT P", "SSCN ON", "PORT 127,0,0,1,4,8", "TYPE I", "STOR /in/big.iso"})
}

func TestVariantLatching(t *testing.T) {
	src, srcSrv := dialScript(t, nil)
	dst, _ := dialScript(t, nil)

	coord := NewCoordinator(src, dst)
	coord.variant = variantCPSV

	if _, err := coord.TransferSSCN(context.Background(), "/a", "/b"); err == nil {
		t.Fatal("expected error mixing SSCN onto a CPSV coordinator")
	}

	if got := srcSrv.commands(); len(got) != 0 {
		t.Errorf("commands sent = %q, want none", got)
	}
}

func TestAwaitCompletion_Independent(t *testing.T) {
	// The slow session must not delay the fast one: each session owns its
	// control channel and the waits run on separate connections.
	slow, _ := dialScript(t, []scriptStep{
		{reply: "226 Transfer complete", delay: 500 * time.Millisecond},
	})
	fast, _ := dialScript(t, []scriptStep{
		{reply: "226 Transfer complete", delay: 10 * time.Millisecond},
	})

	start := time.Now()
	fastDone := make(chan time.Duration, 1)
	slowDone := make(chan time.Duration, 1)

	go func() {
		_, _ = slow.AwaitCompletion()
		slowDone <- time.Since(start)
	}()
	go func() {
		_, _ = fast.AwaitCompletion()
		fastDone <- time.Since(start)
	}()

	fastElapsed := <-fastDone
	slowElapsed := <-slowDone

	if fastElapsed > 300*time.Millisecond {
		t.Errorf("fast wait took %v; blocked behind the slow session?", fastElapsed)
	}
	if slowElapsed < fastElapsed {
		t.Errorf("slow wait (%v) finished before fast wait (%v)", slowElapsed, fastElapsed)
	}
}

func TestAwaitBoth_ContextCancelled(t *testing.T) {
	// Neither server ever sends a completion reply.
	src, _ := dialScript(t, []scriptStep{{delay: 3 * time.Second}})
	dst, _ := dialScript(t, []scriptStep{{delay: 3 * time.Second}})

	coord := NewCoordinator(src, dst)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := coord.awaitBoth(ctx)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("awaitBoth did not honor cancellation (took %v)", elapsed)
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransferError", err)
	}
	if te.Err == nil {
		t.Error("cancelled wait should carry the underlying read error")
	}
	if result == nil {
		t.Error("result suppressed on cancellation")
	}
}

func TestAwaitBoth_PreCancelledContext(t *testing.T) {
	// Neither server ever sends a completion reply, and the context is
	// already cancelled when the waits begin.
	src, _ := dialScript(t, []scriptStep{{delay: 3 * time.Second}})
	dst, _ := dialScript(t, []scriptStep{{delay: 3 * time.Second}})

	coord := NewCoordinator(src, dst)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result, err := coord.awaitBoth(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("awaitBoth hung on a pre-cancelled context (took %v)", elapsed)
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransferError", err)
	}
	if te.Err == nil {
		t.Error("cancelled wait should carry the underlying error")
	}
	if result == nil {
		t.Error("result suppressed on cancellation")
	}
}

func assertCommands(t *testing.T, label string, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("%s commands = %q, want %q", label, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s command[%d] = %q, want %q", label, i, got[i], want[i])
		}
	}
}
