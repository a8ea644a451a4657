package fxp

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ftpkit/fxp/internal/ratelimit"
)

// Option configures a Session at Dial time.
type Option func(*Session) error

// WithTimeout sets the timeout applied to connecting and to every
// command/reply exchange. It does not bound completion waits, which are
// unbounded by protocol design; use the context passed to a Coordinator
// transfer for that.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) error {
		s.timeout = timeout
		return nil
	}
}

// WithLogger enables debug logging of every command and reply.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := fxp.Dial("ftp.example.com:21", fxp.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		s.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer, e.g. to pin a source address.
// The dialer is used as given: its Timeout is not overridden by
// WithTimeout, which keeps governing the command/reply exchanges.
func WithDialer(dialer *net.Dialer) Option {
	return func(s *Session) error {
		s.dialer = dialer
		return nil
	}
}

// WithActiveMode makes direct transfers use PORT instead of PASV: the
// session listens locally and the server connects out. FXP negotiation is
// unaffected; the coordinator always decides listen/connect roles itself.
func WithActiveMode() Option {
	return func(s *Session) error {
		s.activeMode = true
		return nil
	}
}

// WithTLSConfig supplies the base TLS configuration used when the session
// is upgraded via SecureControl.Negotiate and for protected data
// connections. ServerName defaults to the control-connection host.
func WithTLSConfig(config *tls.Config) Option {
	return func(s *Session) error {
		s.tlsConfig = config
		return nil
	}
}

// WithClientCert loads a client certificate and key presented during TLS
// handshakes. Also required for the server role in data-channel
// handshakes (active-mode protected transfers, SSCN OFF semantics).
func WithClientCert(certFile, keyFile string) Option {
	return func(s *Session) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("load client certificate: %w", err)
		}
		s.clientCert = &cert
		return nil
	}
}

// WithCertificate is like WithClientCert for an already-parsed pair.
func WithCertificate(cert tls.Certificate) Option {
	return func(s *Session) error {
		s.clientCert = &cert
		return nil
	}
}

// WithInsecureTLS disables certificate verification. Verification is on
// by default; this is an explicit opt-in for servers with self-signed
// certificates.
func WithInsecureTLS() Option {
	return func(s *Session) error {
		s.insecure = true
		return nil
	}
}

// WithBandwidthLimit caps direct transfer throughput in bytes per second.
// Zero or negative disables the cap.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		s.bandwidth = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithTransferProgress registers a callback invoked with the running byte
// total during direct transfers.
func WithTransferProgress(fn func(bytes int64)) Option {
	return func(s *Session) error {
		s.progress = fn
		return nil
	}
}
