package fxp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptStep is one exchange of a scripted control-channel conversation.
// An empty expect sends the reply unsolicited (used for the final 226 of
// a transfer); an empty reply reads without answering.
type scriptStep struct {
	expect string
	reply  string
	delay  time.Duration
}

// scriptServer plays a canned FTP control-channel conversation. It stands
// in for a real server so tests can inject exact reply codes, delays, and
// failures on each side of a transfer.
type scriptServer struct {
	t    *testing.T
	ln   net.Listener
	addr string

	mu   sync.Mutex
	conn net.Conn
	seen []string
}

func newScriptServer(t *testing.T, steps []scriptStep) *scriptServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &scriptServer{t: t, ln: ln, addr: ln.Addr().String()}

	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})

	go s.run(steps)

	return s
}

func (s *scriptServer) run(steps []scriptStep) {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	fmt.Fprintf(conn, "220 fxp test server ready\r\n")

	reader := bufio.NewReader(conn)

	for _, step := range steps {
		if step.expect != "" {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}

			line = strings.TrimRight(line, "\r\n")

			s.mu.Lock()
			s.seen = append(s.seen, line)
			s.mu.Unlock()

			if !strings.HasPrefix(line, step.expect) {
				s.t.Errorf("script server: got command %q, want prefix %q", line, step.expect)
			}
		}

		if step.delay > 0 {
			time.Sleep(step.delay)
		}

		for _, l := range strings.Split(step.reply, "\n") {
			if l == "" {
				continue
			}
			fmt.Fprintf(conn, "%s\r\n", l)
		}
	}

	// Keep the connection open so trailing client traffic doesn't race an
	// EOF; cleanup closes it.
	_, _ = reader.ReadString('\n')
}

// commands returns every command line received so far.
func (s *scriptServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

// dialScript starts a scripted server and a session connected to it.
func dialScript(t *testing.T, steps []scriptStep, options ...Option) (*Session, *scriptServer) {
	t.Helper()

	srv := newScriptServer(t, steps)

	opts := append([]Option{WithTimeout(2 * time.Second)}, options...)
	s, err := Dial(srv.addr, opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	t.Cleanup(func() { _ = s.conn.Close() })

	return s, srv
}
