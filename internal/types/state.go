package types

import "fmt"

// ConnectionState is the health of the alert stream connection
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Error
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Error:        "error",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the lowercase state name used by the status API
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = ConnectionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", string(text))
}

// StatusText is the human-readable banner shown for each state
func (s ConnectionState) StatusText() string {
	switch s {
	case Connected:
		return "Monitoring Red-Alert System"
	case Connecting:
		return "Connecting to Red-Alert System"
	case Error:
		return "Connection error - retrying"
	default:
		return "Disconnected from Red-Alert System"
	}
}
