package enums

import "fmt"

// SessionState is the normalized state of a provider payment session.
type SessionState string

const (
	SessionStatePending   SessionState = "pending"
	SessionStateConfirmed SessionState = "confirmed"
	SessionStateExpired   SessionState = "expired"
	SessionStateFailed    SessionState = "failed"
)

var validSessionStateValues = []SessionState{
	SessionStatePending,
	SessionStateConfirmed,
	SessionStateExpired,
	SessionStateFailed,
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionState.
func (s SessionState) IsValid() bool {
	for _, candidate := range validSessionStateValues {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionState converts raw input into a SessionState.
func ParseSessionState(value string) (SessionState, error) {
	for _, candidate := range validSessionStateValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session state %q", value)
}

// IsOpen reports whether the session is still being reconciled.
func (s SessionState) IsOpen() bool {
	return s == SessionStatePending
}
