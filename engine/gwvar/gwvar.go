package gwvar

import "expvar"

// Bool is a boolean exported through expvar
type Bool struct {
	val *expvar.Int
}

// NewBool creates and publishes a Bool
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

// Value returns the current value
func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

// Set sets the current value
func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

var (
	// IsHostRunning is true while the host service loop runs
	IsHostRunning = NewBool("IsHostRunning")
	// SpawnedObjects is the number of identities currently spawned on the server
	SpawnedObjects = expvar.NewInt("SpawnedObjects")
	// ConnectionCount is the number of registered connections
	ConnectionCount = expvar.NewInt("ConnectionCount")
	// DeltaMessagesSent counts delta payloads broadcast by ticks
	DeltaMessagesSent = expvar.NewInt("DeltaMessagesSent")
	// ProtocolInconsistencies counts recovered protocol inconsistencies
	ProtocolInconsistencies = expvar.NewInt("ProtocolInconsistencies")
	// ComponentFaults counts failures isolated in component hooks
	ComponentFaults = expvar.NewInt("ComponentFaults")
)
