package fxp

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ftpkit/fxp/internal/ratelimit"
)

// Session is one authenticated FTP control connection. It serializes its
// own command/response traffic; two sessions are fully independent and may
// be driven concurrently, which is what FXP coordination relies on.
//
// A Session is created and owned by the caller. A Coordinator only borrows
// two of them for the duration of a transfer and never closes or
// re-authenticates them.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	// rawConn is the plain TCP connection underneath any TLS layer, kept
	// so CCC can drop back to it.
	rawConn net.Conn

	host string
	port string

	timeout time.Duration
	dialer  *net.Dialer
	logger  *slog.Logger

	// activeMode selects PORT over PASV for direct transfers.
	activeMode bool

	// currentType caches the last TYPE argument so repeated binary-mode
	// transfers don't resend it.
	currentType string

	tlsConfig  *tls.Config
	clientCert *tls.Certificate
	insecure   bool

	// controlSecured is true while the control channel itself is inside a
	// TLS layer. Cleared by CCC.
	controlSecured bool

	// dataProtected is true while PROT P is in effect. Tracked separately
	// from controlSecured: clearing the command channel does not downgrade
	// data-channel protection.
	dataProtected bool

	// sscnClient is true after SSCN ON: this server acts as the TLS client
	// in data-channel handshakes.
	sscnClient bool

	bandwidth *ratelimit.Limiter
	progress  func(bytes int64)

	mu sync.Mutex

	// intrMu guards interrupted and the conn pointer as seen by
	// interruptRead, which must run while mu is held by a blocked
	// completion wait.
	intrMu      sync.Mutex
	interrupted bool
}

// Dial connects to an FTP server at "host:port" and reads the greeting.
// The connection starts in plaintext; use Session.Secure to negotiate TLS.
//
// Example:
//
//	s, err := fxp.Dial("ftp.example.com:21", fxp.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Quit()
func Dial(addr string, options ...Option) (*Session, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("fxp: invalid address: %w", err)
	}

	s := &Session{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("fxp: bad option: %w", err)
		}
	}

	// A caller-supplied dialer is used as given, its Timeout included.
	if s.dialer == nil {
		s.dialer = &net.Dialer{Timeout: s.timeout}
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	return s, nil
}

// connect establishes the control connection and consumes the greeting.
func (s *Session) connect() error {
	addr := net.JoinHostPort(s.host, s.port)
	s.logger.Debug("connecting", "addr", addr)

	conn, err := s.dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("fxp: connect: %w", err)
	}

	s.conn = conn
	s.rawConn = conn
	s.reader = bufio.NewReader(conn)

	if s.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			conn.Close()
			return fmt.Errorf("fxp: set read deadline: %w", err)
		}
	}

	greeting, err := readReply(s.reader)
	if err != nil {
		conn.Close()
		return fmt.Errorf("fxp: read greeting: %w", err)
	}

	s.logger.Debug("greeting", "code", greeting.Code, "text", greeting.Text)

	if greeting.Code != 220 {
		conn.Close()
		return &ProtocolError{Command: "CONNECT", Response: greeting.Text, Code: greeting.Code}
	}

	return nil
}

// Login authenticates with USER/PASS.
func (s *Session) Login(username, password string) error {
	reply, err := s.sendCommand("USER", username)
	if err != nil {
		return err
	}

	// 230: already logged in, no password wanted.
	if reply.Code == 230 {
		return nil
	}

	if reply.Code != 331 {
		return &ProtocolError{Command: "USER", Response: reply.Text, Code: reply.Code}
	}

	if _, err := s.expectCode(230, "PASS", password); err != nil {
		return err
	}

	return nil
}

// Quit sends QUIT and closes the control connection.
func (s *Session) Quit() error {
	if s.conn == nil {
		return nil
	}

	// Best effort; we are closing either way.
	_, _ = s.sendCommand("QUIT")

	return s.conn.Close()
}

// Noop sends a NOOP. Useful as a manual keep-alive between transfers;
// never send one while a completion wait is outstanding, the reply would
// be misread as the transfer's final code.
func (s *Session) Noop() error {
	_, err := s.expect2xx("NOOP")
	return err
}

// Quote sends a raw command and returns the reply unclassified.
func (s *Session) Quote(command string, args ...string) (*Reply, error) {
	return s.sendCommand(command, args...)
}

// Type sets the transfer type ("I" for binary, "A" for ASCII). Redundant
// TYPE commands are skipped.
func (s *Session) Type(transferType string) error {
	if s.currentType == transferType {
		return nil
	}

	if _, err := s.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}

	s.currentType = transferType
	return nil
}

// Secured reports whether the control channel is currently TLS-wrapped.
func (s *Session) Secured() bool {
	return s.controlSecured
}

// DataProtected reports whether PROT P is in effect for data connections.
func (s *Session) DataProtected() bool {
	return s.dataProtected
}

// interruptRead forces any blocked read on the control channel to return
// with a deadline error. Used by the coordinator to honor caller
// cancellation during an otherwise unbounded completion wait. The
// interrupt is sticky: a completion wait that has not reached its read
// yet still observes it instead of clearing the deadline over it.
func (s *Session) interruptRead() {
	s.intrMu.Lock()
	defer s.intrMu.Unlock()

	s.interrupted = true
	_ = s.conn.SetReadDeadline(time.Now())
}

// tlsClientConfig builds the client-role TLS configuration for this
// session: caller-supplied base config, server name from the control
// connection, optional client certificate, and a session cache so data
// connections can resume the control channel's TLS session (required by
// vsftpd and ProFTPD in their default configuration).
func (s *Session) tlsClientConfig() *tls.Config {
	var cfg *tls.Config
	if s.tlsConfig != nil {
		cfg = s.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}

	if cfg.ServerName == "" {
		cfg.ServerName = s.host
	}
	if s.insecure {
		cfg.InsecureSkipVerify = true
	}
	if s.clientCert != nil && len(cfg.Certificates) == 0 {
		cfg.Certificates = []tls.Certificate{*s.clientCert}
	}
	if cfg.ClientSessionCache == nil {
		cfg.ClientSessionCache = tls.NewLRUClientSessionCache(0)
	}

	return cfg
}
