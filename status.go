package reseda

import "github.com/bennjii/reseda/internal/wgconf"

// Protocol is the tunnel protocol reported on every status snapshot.
const Protocol = "wireguard"

// ConnectionState is the phase of a connection attempt.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Connected
	Connecting
	Error
	Disconnecting
	Finishing
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	case Error:
		return "error"
	case Disconnecting:
		return "disconnecting"
	case Finishing:
		return "finishing"
	default:
		return "unknown"
	}
}

// ConnectionStatus is an immutable snapshot of the tunnel connection, emitted
// after every transition. Build one with NewStatus so Connected stays in sync
// with State.
type ConnectionStatus struct {
	Protocol     string          `json:"protocol"`
	State        ConnectionState `json:"connection"`
	Connected    bool            `json:"connected"`
	Message      string          `json:"message,omitempty"`
	Config       wgconf.Config   `json:"config"`
	ConfigText   string          `json:"as_string,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Location     *Location       `json:"location,omitempty"`
	Server       string          `json:"server,omitempty"`
}

// NewStatus returns a snapshot in state with the protocol and connected flag
// filled in.
func NewStatus(state ConnectionState) ConnectionStatus {
	return ConnectionStatus{
		Protocol:  Protocol,
		State:     state,
		Connected: state == Connected,
	}
}

// WithConfig returns a copy of s carrying a deep copy of cfg and its wg-quick
// rendering.
func (s ConnectionStatus) WithConfig(cfg *wgconf.Config) ConnectionStatus {
	if cfg == nil {
		s.Config = wgconf.Config{}
		s.ConfigText = ""
		return s
	}
	s.Config = cfg.Clone()
	s.ConfigText = cfg.String()
	return s
}

// Terminal reports whether no further transition is expected without a new
// Connect, Disconnect or Resume call.
func (s ConnectionStatus) Terminal() bool {
	return s.State == Connected || s.State == Disconnected || s.State == Error
}
