package fxp

import (
	"fmt"
	"net"
	"time"
)

// openDataConn establishes a data connection for a direct transfer,
// honoring the session's passive/active mode and data protection state.
func (s *Session) openDataConn() (net.Conn, error) {
	if s.activeMode {
		return s.openActiveDataConn()
	}
	return s.openPassiveDataConn()
}

// openPassiveDataConn asks the server for a port with PASV and connects
// to it, playing the TLS client role if the data channel is protected.
func (s *Session) openPassiveDataConn() (net.Conn, error) {
	reply, err := s.PassivePort()
	if err != nil {
		return nil, err
	}

	addr, err := ParsePassiveReply(reply.String())
	if err != nil {
		return nil, err
	}

	dataConn, err := s.dialer.Dial("tcp", resolveDataAddr(addr.Addr(), s.host))
	if err != nil {
		return nil, fmt.Errorf("fxp: connect to data port: %w", err)
	}

	wrapped, err := s.wrapDataConn(dataConn, roleClient)
	if err != nil {
		return nil, err
	}

	return &deadlineConn{Conn: wrapped, timeout: s.timeout}, nil
}

// openActiveDataConn listens locally, announces the port with PORT, and
// returns a connection that accepts the server's dial lazily on first
// use: the server only connects once the transfer command is issued.
// Protected active-mode connections play the TLS server role.
func (s *Session) openActiveDataConn() (net.Conn, error) {
	localHost, _, err := net.SplitHostPort(s.conn.LocalAddr().String())
	if err != nil {
		localHost = "127.0.0.1"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(localHost, "0"))
	if err != nil {
		return nil, fmt.Errorf("fxp: listen for data connection: %w", err)
	}

	spec, err := formatPortSpec(listener.Addr().String())
	if err != nil {
		listener.Close()
		return nil, err
	}

	if err := s.ActivePort(spec); err != nil {
		listener.Close()
		return nil, err
	}

	return &activeDataConn{session: s, listener: listener, timeout: s.timeout}, nil
}

// activeDataConn defers Accept until the first read or write.
type activeDataConn struct {
	session  *Session
	listener net.Listener
	conn     net.Conn
	timeout  time.Duration
}

func (a *activeDataConn) accept() error {
	if a.timeout > 0 {
		if l, ok := a.listener.(*net.TCPListener); ok {
			_ = l.SetDeadline(time.Now().Add(a.timeout))
		}
	}

	conn, err := a.listener.Accept()
	if err != nil {
		return err
	}

	wrapped, err := a.session.wrapDataConn(conn, roleServer)
	if err != nil {
		return err
	}

	a.conn = wrapped
	return nil
}

func (a *activeDataConn) Read(p []byte) (int, error) {
	if a.conn == nil {
		if err := a.accept(); err != nil {
			return 0, err
		}
	}
	if a.timeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(a.timeout))
	}
	return a.conn.Read(p)
}

func (a *activeDataConn) Write(p []byte) (int, error) {
	if a.conn == nil {
		if err := a.accept(); err != nil {
			return 0, err
		}
	}
	if a.timeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.timeout))
	}
	return a.conn.Write(p)
}

func (a *activeDataConn) Close() error {
	var connErr error
	if a.conn != nil {
		connErr = a.conn.Close()
	}
	lnErr := a.listener.Close()
	if connErr != nil {
		return connErr
	}
	return lnErr
}

func (a *activeDataConn) LocalAddr() net.Addr {
	if a.conn != nil {
		return a.conn.LocalAddr()
	}
	return a.listener.Addr()
}

func (a *activeDataConn) RemoteAddr() net.Addr {
	if a.conn != nil {
		return a.conn.RemoteAddr()
	}
	return nil
}

func (a *activeDataConn) SetDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetReadDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetReadDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetWriteDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetWriteDeadline(t)
	}
	return nil
}

// deadlineConn re-arms a read/write deadline before every operation.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
