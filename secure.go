package fxp

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// AuthMode selects the control-channel security negotiation command.
type AuthMode string

const (
	// AuthTLS negotiates with "AUTH TLS" (RFC 4217). Use this unless the
	// server only understands the older form.
	AuthTLS AuthMode = "TLS"

	// AuthSSL negotiates with "AUTH SSL", the pre-RFC variant some legacy
	// servers still expect.
	AuthSSL AuthMode = "SSL"
)

// ProtLevel is a data-channel protection level for the PROT command.
type ProtLevel string

const (
	ProtClear        ProtLevel = "C"
	ProtSafe         ProtLevel = "S"
	ProtConfidential ProtLevel = "E"

	// ProtPrivate gives integrity plus privacy; with TLS only ProtPrivate
	// and ProtClear are meaningful, the other levels are accepted
	// protocol-wise but map to nothing.
	ProtPrivate ProtLevel = "P"
)

// SecureControl manages the TLS state of one session: control-channel
// upgrade, data protection level, CCC downgrade, and the SSCN handshake
// role toggle. It is attached to a session by composition rather than
// being a subtype of it, so any session - plain or secured - carries the
// same API.
type SecureControl struct {
	s *Session
}

// Secure returns the TLS controller for this session.
func (s *Session) Secure() *SecureControl {
	return &SecureControl{s: s}
}

// Negotiate upgrades the control channel to TLS and logs in over the
// encrypted channel. The sequence is AUTH TLS|SSL, a client-role TLS
// handshake, USER/PASS, then PBSZ 0 (mandatory even though the buffer
// size is unused under TLS) and PROT P.
//
// A login failure after a successful handshake is reported as *AuthError:
// handshake success says nothing about credential validity.
func (sc *SecureControl) Negotiate(mode AuthMode, username, password string) error {
	s := sc.s

	if s.controlSecured {
		return fmt.Errorf("fxp: control channel already secured")
	}

	reply, err := s.sendCommand("AUTH", string(mode))
	if err != nil {
		return err
	}
	if reply.Code != 234 {
		return &ProtocolError{Command: "AUTH " + string(mode), Response: reply.Text, Code: reply.Code}
	}

	if err := sc.wrapControl(); err != nil {
		return err
	}

	if err := s.Login(username, password); err != nil {
		return &AuthError{User: username, Err: err}
	}

	if _, err := s.expectCode(200, "PBSZ", "0"); err != nil {
		return fmt.Errorf("fxp: PBSZ: %w", err)
	}

	if err := sc.SetProtection(ProtPrivate); err != nil {
		return fmt.Errorf("fxp: PROT: %w", err)
	}

	return nil
}

// wrapControl performs the client-role handshake over the existing
// control connection and swaps the session's reader onto the TLS layer.
func (sc *SecureControl) wrapControl() error {
	s := sc.s

	s.logger.Debug("control channel TLS handshake")

	tlsConn := tls.Client(s.conn, s.tlsClientConfig())

	if s.timeout > 0 {
		if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			return fmt.Errorf("fxp: set handshake deadline: %w", err)
		}
	}

	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("fxp: control TLS handshake: %w", err)
	}

	s.mu.Lock()
	s.intrMu.Lock()
	s.conn = tlsConn
	s.intrMu.Unlock()
	s.reader = bufio.NewReader(tlsConn)
	s.controlSecured = true
	s.mu.Unlock()

	return nil
}

// SetProtection issues PROT with the given level and records whether data
// connections need TLS wrapping (any level other than clear).
func (sc *SecureControl) SetProtection(level ProtLevel) error {
	s := sc.s

	if _, err := s.expectCode(200, "PROT", string(level)); err != nil {
		return err
	}

	s.dataProtected = level != ProtClear
	return nil
}

// ClearCommandChannel issues CCC, dropping the control channel back to
// plaintext on success. The server may refuse; refusal is a normal
// outcome, returned as the server's reply with a nil error and no state
// change. Data-channel protection is tracked independently and keeps its
// negotiated level either way.
func (sc *SecureControl) ClearCommandChannel() (*Reply, error) {
	s := sc.s

	reply, err := s.sendCommand("CCC")
	if err != nil {
		return nil, err
	}

	if !reply.Is2xx() {
		return reply, nil
	}

	// The server switches to plaintext right after its 200, so drop our
	// TLS layer and read from the raw connection again. No close_notify
	// is exchanged; CCC-capable servers do not expect one.
	s.mu.Lock()
	s.intrMu.Lock()
	s.conn = s.rawConn
	s.intrMu.Unlock()
	s.reader = bufio.NewReader(s.conn)
	s.controlSecured = false
	s.mu.Unlock()

	s.logger.Debug("command channel cleared")

	return reply, nil
}

// ToggleSSCN switches which end of the server-to-server data connection
// plays the TLS client during the handshake: ON means this server acts as
// the client, OFF (the server default) means it acts as the TLS server.
// PROT P must already be active; the precondition is checked here before
// any command is sent.
func (sc *SecureControl) ToggleSSCN(on bool) error {
	s := sc.s

	if !s.dataProtected {
		return fmt.Errorf("fxp: SSCN requires PROT P to be active")
	}

	arg := "OFF"
	if on {
		arg = "ON"
	}

	if _, err := s.expect2xx("SSCN", arg); err != nil {
		return err
	}

	s.sscnClient = on
	return nil
}

// PassiveProtected issues CPSV: identical reply shape to PASV, but tells
// the listening server not to initiate the TLS handshake itself - the
// peer instructed to connect will, per PROT P semantics.
func (sc *SecureControl) PassiveProtected() (*Reply, error) {
	return sc.s.expectCode(227, "CPSV")
}

// dataRole is the TLS role this process plays on a data connection it
// participates in directly.
type dataRole int

const (
	roleClient dataRole = iota
	roleServer
)

// wrapDataConn applies the session's data protection policy to a freshly
// established data connection. With protection off the raw connection is
// returned untouched. The server role requires a certificate, supplied
// via WithClientCert.
func (s *Session) wrapDataConn(raw net.Conn, role dataRole) (net.Conn, error) {
	if !s.dataProtected {
		return raw, nil
	}

	var tlsConn *tls.Conn
	switch role {
	case roleServer:
		if s.clientCert == nil {
			raw.Close()
			return nil, fmt.Errorf("fxp: server-role data handshake needs a certificate (WithClientCert)")
		}
		tlsConn = tls.Server(raw, &tls.Config{Certificates: []tls.Certificate{*s.clientCert}})
	default:
		tlsConn = tls.Client(raw, s.tlsClientConfig())
	}

	if s.timeout > 0 {
		if err := raw.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			raw.Close()
			return nil, err
		}
	}

	if err := tlsConn.Handshake(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("fxp: data TLS handshake: %w", err)
	}

	return tlsConn, nil
}
