package domain

// Pub/sub channels carrying JSON-encoded updates.
const (
	ChannelConsensus = "ch:consensus"
	ChannelScan      = "ch:scan"
)

// SignalKind labels a message published on the signal bus.
type SignalKind string

const (
	SignalConsensus    SignalKind = "consensus"
	SignalScanProgress SignalKind = "scan_progress"
	SignalScanDone     SignalKind = "scan_done"
)

// SignalEnvelope wraps every message published on the signal bus.
type SignalEnvelope struct {
	Kind    SignalKind `json:"kind"`
	Payload any        `json:"payload"`
}
