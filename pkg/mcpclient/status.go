package mcpclient

// Status is the lifecycle state of a server session
type Status int

const (
	// StatusDisconnected means no connection attempt has been made yet
	StatusDisconnected Status = iota
	// StatusConnecting means the handshake is in progress
	StatusConnecting
	// StatusReady means the session accepts tool calls
	StatusReady
	// StatusFailed means the last connect attempt gave up
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
