package fxp

import (
	"fmt"
	"io"

	"github.com/ftpkit/fxp/internal/ratelimit"
)

// Store uploads data from r to remotePath on this session's server, in
// binary mode. Bandwidth limits and progress callbacks configured on the
// session apply.
//
// This is a direct transfer between the local process and one server;
// for server-to-server copies use a Coordinator.
func (s *Session) Store(remotePath string, r io.Reader) error {
	if err := s.Type("I"); err != nil {
		return err
	}

	dataConn, err := s.openDataConn()
	if err != nil {
		return err
	}

	if _, err := s.expectPreliminary("STOR", remotePath); err != nil {
		dataConn.Close()
		return err
	}

	var dst io.Writer = ratelimit.NewWriter(dataConn, s.bandwidth)
	if s.progress != nil {
		dst = &ProgressWriter{Writer: dst, Callback: s.progress}
	}

	_, copyErr := io.Copy(dst, r)

	closeErr := dataConn.Close()

	reply, waitErr := s.AwaitCompletion()

	if copyErr != nil {
		return fmt.Errorf("fxp: upload: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fxp: close data connection: %w", closeErr)
	}
	if waitErr != nil {
		return waitErr
	}
	if !reply.TransferComplete() {
		return &ProtocolError{Command: "STOR", Response: reply.Text, Code: reply.Code}
	}

	return nil
}

// Retrieve downloads remotePath from this session's server into w, in
// binary mode.
func (s *Session) Retrieve(remotePath string, w io.Writer) error {
	if err := s.Type("I"); err != nil {
		return err
	}

	dataConn, err := s.openDataConn()
	if err != nil {
		return err
	}

	if _, err := s.expectPreliminary("RETR", remotePath); err != nil {
		dataConn.Close()
		return err
	}

	var src io.Reader = ratelimit.NewReader(dataConn, s.bandwidth)
	if s.progress != nil {
		src = &ProgressReader{Reader: src, Callback: s.progress}
	}

	_, copyErr := io.Copy(w, src)

	closeErr := dataConn.Close()

	reply, waitErr := s.AwaitCompletion()

	if copyErr != nil {
		return fmt.Errorf("fxp: download: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fxp: close data connection: %w", closeErr)
	}
	if waitErr != nil {
		return waitErr
	}
	if !reply.TransferComplete() {
		return &ProtocolError{Command: "RETR", Response: reply.Text, Code: reply.Code}
	}

	return nil
}
