package fxp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reply is a single FTP control-channel reply: a three-digit status code
// followed by text, possibly spanning multiple lines.
type Reply struct {
	// Code is the three-digit status code of the first line (e.g. 226, 550).
	Code int

	// Text is the human-readable reply text with code prefixes stripped.
	Text string

	// Lines holds every raw line of the reply. For multi-line replies such
	// as STAT -l output, the interior lines carry the listing entries.
	Lines []string
}

// Is2xx reports whether the reply code is in the 2xx (success) range.
func (r *Reply) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// IsPreliminary reports whether the reply code is in the 1xx range,
// meaning the requested action has started and a final reply will follow.
func (r *Reply) IsPreliminary() bool {
	return r.Code >= 100 && r.Code < 200
}

// TransferComplete reports whether the reply is exactly code 226.
// Only 226 counts: other 2xx codes after a transfer are not "transfer
// complete" and are classified as failures by the coordinator.
func (r *Reply) TransferComplete() bool {
	return r.Code == 226
}

// String returns the raw reply, one line per entry.
func (r *Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// readReply reads one complete reply from the control channel.
//
// Single-line: "226 Transfer complete\r\n"
// Multi-line:  "213-Status follows\r\n" ... "213 End\r\n"
//
// Interior lines of a multi-line reply may repeat the code ("213-entry"),
// start with a space (RFC 2389 style), or be free-form text with no code
// prefix at all, which is how most servers emit STAT listing entries. The
// reply ends at a line starting with the code followed by a space.
func readReply(r *bufio.Reader) (*Reply, error) {
	line, err := readReplyLine(r)
	if err != nil {
		return nil, err
	}

	if len(line) < 4 {
		return nil, fmt.Errorf("fxp: short reply line: %q", line)
	}

	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("fxp: bad reply code in %q", line)
	}

	lines := []string{line}

	// Common case: single-line reply.
	if line[3] == ' ' {
		return &Reply{Code: code, Text: line[4:], Lines: lines}, nil
	}

	if line[3] != '-' {
		return nil, fmt.Errorf("fxp: malformed reply line: %q", line)
	}

	terminator := line[0:3] + " "
	for {
		line, err = readReplyLine(r)
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("fxp: connection closed mid-reply")
			}
			return nil, err
		}

		lines = append(lines, line)

		if strings.HasPrefix(line, terminator) {
			break
		}
	}

	return &Reply{Code: code, Text: joinReplyText(code, lines), Lines: lines}, nil
}

func readReplyLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// joinReplyText strips the "NNN-" / "NNN " prefix from lines that carry it
// and joins the result. Free-form interior lines are kept verbatim.
func joinReplyText(code int, lines []string) string {
	prefix := fmt.Sprintf("%03d", code)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(l) >= 4 && l[0:3] == prefix && (l[3] == '-' || l[3] == ' ') {
			out = append(out, l[4:])
			continue
		}
		out = append(out, strings.TrimPrefix(l, " "))
	}
	return strings.Join(out, "\n")
}

// sendCommand writes one command line and reads the reply. The session
// mutex serializes the full exchange: FTP control channels are strictly
// half-duplex, so at most one command may be in flight per session.
func (s *Session) sendCommand(command string, args ...string) (*Reply, error) {
	cmd := command
	if len(args) > 0 {
		cmd = command + " " + strings.Join(args, " ")
	}

	s.logger.Debug("ftp command", "cmd", redactCommand(cmd))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return nil, fmt.Errorf("fxp: set write deadline: %w", err)
		}
	}

	if _, err := fmt.Fprintf(s.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("fxp: send %s: %w", command, err)
	}

	if s.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return nil, fmt.Errorf("fxp: set read deadline: %w", err)
		}
	}

	reply, err := readReply(s.reader)
	if err != nil {
		return nil, fmt.Errorf("fxp: read reply to %s: %w", command, err)
	}

	s.logger.Debug("ftp reply", "code", reply.Code, "text", reply.Text)

	return reply, nil
}

// redactCommand hides credentials in debug logs.
func redactCommand(cmd string) string {
	if strings.HasPrefix(cmd, "PASS ") {
		return "PASS ****"
	}
	return cmd
}

// expectCode sends a command and requires the exact reply code.
func (s *Session) expectCode(want int, command string, args ...string) (*Reply, error) {
	reply, err := s.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if reply.Code != want {
		return reply, &ProtocolError{Command: command, Response: reply.Text, Code: reply.Code}
	}

	return reply, nil
}

// expect2xx sends a command and requires any 2xx reply.
func (s *Session) expect2xx(command string, args ...string) (*Reply, error) {
	reply, err := s.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if !reply.Is2xx() {
		return reply, &ProtocolError{Command: command, Response: reply.Text, Code: reply.Code}
	}

	return reply, nil
}

// expectPreliminary sends a command and requires a 1xx or 2xx reply.
// Transfer commands (STOR, RETR) normally answer 150 before the data
// moves and send the final code afterwards.
func (s *Session) expectPreliminary(command string, args ...string) (*Reply, error) {
	reply, err := s.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if !reply.IsPreliminary() && !reply.Is2xx() {
		return reply, &ProtocolError{Command: command, Response: reply.Text, Code: reply.Code}
	}

	return reply, nil
}
