package fxp

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// passiveChain matches the comma-separated number run of a PASV or CPSV
// reply, e.g. the "192,168,1,1,195,149" in "227 Entering Passive Mode
// (192,168,1,1,195,149)". The surrounding parentheses are optional; some
// servers omit them. The whole run is captured so a reply with the wrong
// field count is rejected instead of silently truncated.
var passiveChain = regexp.MustCompile(`\d+(?:,\d+)+`)

// PassiveAddr is the address/port tuple of a PASV/CPSV reply. It can be
// re-encoded byte-identically as a PORT argument, which is how an FXP
// coordinator relays the listening side's address to the connecting side.
type PassiveAddr struct {
	octets [4]int
	hi, lo int
}

// ParsePassiveReply extracts the address/port tuple from a PASV or CPSV
// reply. Replies without exactly six in-range numeric components yield a
// *NegotiationError.
func ParsePassiveReply(text string) (*PassiveAddr, error) {
	chain := passiveChain.FindString(text)
	if chain == "" {
		return nil, &NegotiationError{Response: text, Reason: "no comma-separated number tuple found"}
	}

	parts := strings.Split(chain, ",")
	if len(parts) != 6 {
		return nil, &NegotiationError{Response: text, Reason: fmt.Sprintf("expected 6 numeric components, got %d", len(parts))}
	}

	var a PassiveAddr
	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(parts[i])
		if err != nil || v > 255 {
			return nil, &NegotiationError{Response: text, Reason: fmt.Sprintf("address component %q out of range", parts[i])}
		}
		a.octets[i] = v
	}

	hi, err1 := strconv.Atoi(parts[4])
	lo, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil || hi > 255 || lo > 255 {
		return nil, &NegotiationError{Response: text, Reason: "port component out of range"}
	}
	a.hi, a.lo = hi, lo

	return &a, nil
}

// Host returns the dotted-quad address.
func (a *PassiveAddr) Host() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.octets[0], a.octets[1], a.octets[2], a.octets[3])
}

// Port returns the decoded TCP port (hi*256 + lo).
func (a *PassiveAddr) Port() int {
	return a.hi*256 + a.lo
}

// Addr returns the tuple as a dialable "host:port" string.
func (a *PassiveAddr) Addr() string {
	return net.JoinHostPort(a.Host(), strconv.Itoa(a.Port()))
}

// PortSpec re-encodes the tuple as a PORT argument. For any tuple parsed
// by ParsePassiveReply this round-trips exactly.
func (a *PassiveAddr) PortSpec() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", a.octets[0], a.octets[1], a.octets[2], a.octets[3], a.hi, a.lo)
}

// String implements fmt.Stringer.
func (a *PassiveAddr) String() string {
	return a.Addr()
}

// formatPortSpec encodes a local "host:port" address as a PORT argument.
// Used by active-mode direct transfers; FXP negotiation goes through
// PassiveAddr instead.
func formatPortSpec(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("fxp: invalid IP address: %s", host)
	}
	ip = ip.To4()
	if ip == nil {
		return "", fmt.Errorf("fxp: PORT requires an IPv4 address")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("fxp: invalid port: %s", portStr)
	}

	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port/256, port%256), nil
}

// resolveDataAddr works around servers that advertise 0.0.0.0 in their
// PASV reply by substituting the control-connection host.
func resolveDataAddr(dataAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(dataAddr)
	if err != nil {
		return dataAddr
	}

	if host == "0.0.0.0" && controlHost != "" {
		return net.JoinHostPort(controlHost, port)
	}

	return dataAddr
}
