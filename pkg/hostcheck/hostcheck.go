// Package hostcheck rejects hosts the launcher cannot run on before any
// resource is allocated.
package hostcheck

import (
	"fmt"
	"strconv"
	"strings"
)

// MinimalRelease is the oldest supported kernel (Ubuntu 20.04 LTS)
var MinimalRelease = Release{Major: 5, Minor: 4}

// SupportedMachine is the only machine reported by uname that is accepted
const SupportedMachine = "x86_64"

// Reason tells which precondition failed, values are stable error codes
type Reason int

// Reasons
const (
	ReasonKernel Reason = iota
	ReasonArch
)

func (r Reason) String() string {
	switch r {
	case ReasonKernel:
		return "Kernel version"
	case ReasonArch:
		return "Machine architecture"
	default:
		return "Unknown reason"
	}
}

// UnsupportedError is returned when the host fails a precondition
type UnsupportedError struct {
	Reason Reason
	Value  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("hostcheck: not supported by %s: %s", e.Reason, e.Value)
}

// Release is the major.minor part of a kernel release string
type Release struct {
	Major, Minor int
}

// ParseRelease parses strings like "5.15.0-91-generic"
func ParseRelease(s string) (Release, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return Release{}, fmt.Errorf("hostcheck: malformed release %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Release{}, fmt.Errorf("hostcheck: malformed release %q: %w", s, err)
	}
	minor, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil {
		return Release{}, fmt.Errorf("hostcheck: malformed release %q: %w", s, err)
	}
	return Release{Major: major, Minor: minor}, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// Less compares two releases
func (r Release) Less(o Release) bool {
	if r.Major != o.Major {
		return r.Major < o.Major
	}
	return r.Minor < o.Minor
}

func (r Release) String() string {
	return fmt.Sprintf("%d.%d", r.Major, r.Minor)
}

// Host is what uname reports
type Host struct {
	Release string
	Machine string
}

// Check validates the host against MinimalRelease and SupportedMachine
func (h Host) Check() error {
	rel, err := ParseRelease(h.Release)
	if err != nil {
		return err
	}
	if rel.Less(MinimalRelease) {
		return &UnsupportedError{Reason: ReasonKernel, Value: h.Release}
	}
	if h.Machine != SupportedMachine {
		return &UnsupportedError{Reason: ReasonArch, Value: h.Machine}
	}
	return nil
}
