package model

import (
	"fmt"
	"strconv"
)

// StatusKind tags the variant held by a LinkStatus.
type StatusKind int

const (
	// StatusPending means the link has not been checked yet.
	StatusPending StatusKind = iota

	// StatusOK means the URL answered with a success status at the requested location.
	StatusOK

	// StatusRedirected means the URL resolved successfully at a different final location.
	StatusRedirected

	// StatusInvalid means the server answered with a 4xx or 5xx status.
	StatusInvalid

	// StatusUnreachable means no HTTP answer could be obtained.
	StatusUnreachable
)

// String returns the variant name used in reports.
func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "Pending"
	case StatusOK:
		return "Ok"
	case StatusRedirected:
		return "Redirected"
	case StatusInvalid:
		return "Invalid"
	case StatusUnreachable:
		return "Unreachable"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name so stored reports stay readable.
func (k StatusKind) MarshalText() ([]byte, error) {
	switch k {
	case StatusPending, StatusOK, StatusRedirected, StatusInvalid, StatusUnreachable:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown status kind %d", int(k))
	}
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *StatusKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Pending":
		*k = StatusPending
	case "Ok":
		*k = StatusOK
	case "Redirected":
		*k = StatusRedirected
	case "Invalid":
		*k = StatusInvalid
	case "Unreachable":
		*k = StatusUnreachable
	default:
		return fmt.Errorf("unknown status kind %q", string(text))
	}
	return nil
}

// Reasons attached to Unreachable results.
const (
	ReasonTimeout       = "timeout"
	ReasonDNS           = "dns"
	ReasonRefused       = "connection refused"
	ReasonReset         = "connection reset"
	ReasonTLS           = "tls"
	ReasonRedirectLimit = "too many redirects"
	ReasonConnection    = "connection error"
)

// LinkStatus is the outcome of checking one URL.
// Only the field matching Kind carries data: Target for Redirected,
// Code for Invalid and Reason for Unreachable. Build values with the
// constructor functions rather than by hand.
type LinkStatus struct {
	Kind   StatusKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	Code   int        `json:"code,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// Pending returns the initial status of every link.
func Pending() LinkStatus {
	return LinkStatus{Kind: StatusPending}
}

// OK returns a successful status.
func OK() LinkStatus {
	return LinkStatus{Kind: StatusOK}
}

// Redirected returns a successful status that ended at target.
func Redirected(target string) LinkStatus {
	return LinkStatus{Kind: StatusRedirected, Target: target}
}

// Invalid returns a status for an HTTP error response.
func Invalid(code int) LinkStatus {
	return LinkStatus{Kind: StatusInvalid, Code: code}
}

// Unreachable returns a status for a request that never got an answer.
func Unreachable(reason string) LinkStatus {
	return LinkStatus{Kind: StatusUnreachable, Reason: reason}
}

// Terminal reports whether the status will not change for the rest of a run.
func (s LinkStatus) Terminal() bool {
	switch s.Kind {
	case StatusOK, StatusRedirected, StatusInvalid, StatusUnreachable:
		return true
	case StatusPending:
		return false
	default:
		return false
	}
}

// Problem reports whether the status needs a human to look at the link.
func (s LinkStatus) Problem() bool {
	switch s.Kind {
	case StatusInvalid, StatusUnreachable:
		return true
	case StatusPending, StatusOK, StatusRedirected:
		return false
	default:
		return false
	}
}

// Label renders the status the way reports print it, e.g. "Invalid(404)".
func (s LinkStatus) Label() string {
	switch s.Kind {
	case StatusPending:
		return "Pending"
	case StatusOK:
		return "Ok"
	case StatusRedirected:
		return "Redirected"
	case StatusInvalid:
		return "Invalid(" + strconv.Itoa(s.Code) + ")"
	case StatusUnreachable:
		return "Unreachable(" + s.Reason + ")"
	default:
		return "Unknown"
	}
}

// String implements fmt.Stringer.
func (s LinkStatus) String() string {
	if s.Kind == StatusRedirected {
		return s.Label() + " → " + s.Target
	}
	return s.Label()
}
