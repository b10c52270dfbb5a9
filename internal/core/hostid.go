package core

import (
	"fmt"
	"os"
	"os/user"
	"strings"
)

// HostID identifies a device+user pair. Shape "user@host", both halves
// alphanumeric. Generated once per installation and then immutable.
type HostID string

// NewHostID builds the canonical "user@host" identity for this machine.
func NewHostID() (HostID, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("core: resolve current user: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("core: resolve hostname: %w", err)
	}
	return ParseHostID(fmt.Sprintf("%s@%s", sanitizeHostPart(u.Username), sanitizeHostPart(host)))
}

// sanitizeHostPart strips anything not alphanumeric, so a domain-joined
// username (DOMAIN\user) or a hostname with dashes still parses.
func sanitizeHostPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseHostID validates and wraps a "user@host" string. Both halves must be
// non-empty and alphanumeric.
func ParseHostID(s string) (HostID, error) {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("core: host id %q must have exactly one '@'", s)
	}
	if !isAlphanumeric(parts[0]) || parts[0] == "" {
		return "", fmt.Errorf("core: host id %q: user part must be alphanumeric", s)
	}
	if !isAlphanumeric(parts[1]) || parts[1] == "" {
		return "", fmt.Errorf("core: host id %q: host part must be alphanumeric", s)
	}
	return HostID(s), nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func (h HostID) String() string { return string(h) }
