package fxp

import (
	"strconv"
	"strings"
	"time"
)

// PassivePort issues PASV and returns the raw reply. Use
// ParsePassiveReply to extract the address/port tuple.
func (s *Session) PassivePort() (*Reply, error) {
	return s.expectCode(227, "PASV")
}

// ActivePort issues PORT with an already-encoded h1,h2,h3,h4,p1,p2 tuple,
// normally one obtained from the peer's PASV/CPSV reply.
func (s *Session) ActivePort(spec string) error {
	_, err := s.expect2xx("PORT", spec)
	return err
}

// PrepareStore switches the session to binary mode and issues STOR. The
// destination of an FXP transfer must be prepared before the source
// issues RETR: most servers behave undefined if data arrives at a port
// nobody is reading yet, so the coordinator enforces this ordering.
func (s *Session) PrepareStore(path string) (*Reply, error) {
	if err := s.Type("I"); err != nil {
		return nil, err
	}
	return s.expectPreliminary("STOR", path)
}

// PrepareRetrieve switches the session to binary mode and issues RETR.
func (s *Session) PrepareRetrieve(path string) (*Reply, error) {
	if err := s.Type("I"); err != nil {
		return nil, err
	}
	return s.expectPreliminary("RETR", path)
}

// AwaitCompletion blocks until the server sends the final reply for an
// in-flight transfer and returns it uninterpreted. The wait is unbounded:
// the protocol defines no completion timeout, and the far side may be
// streaming for an arbitrarily long time. Callers wanting bounded latency
// cancel via Coordinator contexts or interruptRead.
//
// Only the reply read is serialized against other commands on this
// session; a wait here never blocks traffic on a different session.
func (s *Session) AwaitCompletion() (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An interrupt may land before this wait starts; clearing the deadline
	// first would erase it and the read below would block forever.
	s.intrMu.Lock()
	if s.interrupted {
		s.interrupted = false
		s.intrMu.Unlock()
		return nil, ErrWaitInterrupted
	}

	// Clear any per-command deadline; this read is allowed to block.
	clearErr := s.conn.SetReadDeadline(time.Time{})
	s.intrMu.Unlock()
	if clearErr != nil {
		return nil, clearErr
	}

	reply, err := readReply(s.reader)

	s.intrMu.Lock()
	s.interrupted = false
	s.intrMu.Unlock()

	if err != nil {
		return nil, err
	}

	s.logger.Debug("transfer completion", "code", reply.Code, "text", reply.Text)

	return reply, nil
}

// ExtendedFeatures issues FEAT and returns the raw multi-line reply.
// Informational only; no classification is applied.
func (s *Session) ExtendedFeatures() (*Reply, error) {
	return s.sendCommand("FEAT")
}

// DupeMode issues SITE XDUPE to set the extended dupe-check mode.
// A negative mode queries the current setting.
func (s *Session) DupeMode(mode int) (*Reply, error) {
	if mode < 0 {
		return s.expect2xx("SITE", "XDUPE")
	}
	return s.expect2xx("SITE", "XDUPE", strconv.Itoa(mode))
}

// FastList issues STAT -l, a lighter-weight LIST substitute that returns
// the listing over the control channel instead of opening a data
// connection. An empty path lists the current directory.
func (s *Session) FastList(path string) (*Reply, error) {
	if path == "" {
		return s.sendCommand("STAT", "-l")
	}
	return s.sendCommand("STAT", "-l", path)
}

// FileExists reports whether path names a regular file, derived from a
// FastList scan. Banner lines carrying the 213 status prefix are ignored;
// a line counts only if its entry type marks a plain file ("-rw" style
// permission string), so directories and links don't match.
func (s *Session) FileExists(path string) (bool, error) {
	reply, err := s.FastList(path)
	if err != nil || reply.Code >= 400 {
		return false, err
	}

	for _, line := range reply.Lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "213") {
			continue
		}
		if strings.HasPrefix(line, "-rw") {
			return true, nil
		}
	}

	return false, nil
}

// PathExists reports whether path names anything at all; unlike
// FileExists, directory entries count too.
func (s *Session) PathExists(path string) (bool, error) {
	reply, err := s.FastList(path)
	if err != nil || reply.Code >= 400 {
		return false, err
	}

	for _, line := range reply.Lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "213") {
			continue
		}
		return true, nil
	}

	return false, nil
}
