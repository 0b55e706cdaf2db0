package comm

import "sync/atomic"

// FaultInjector simulates a worker failure for integration tests: when
// enabled, the first request received by the process is dropped by closing
// its connection before any processing, which forces the sender down the
// retry path.
//
// The injector is handed explicitly to the request handler that consults it,
// rather than living in package state, so tests can create as many
// independent injectors as they need.
type FaultInjector struct {
	enabled bool
	tripped uint32
}

// NewFaultInjector creates a FaultInjector. When enabled is false,
// ShouldDropFirstRequest never fires.
func NewFaultInjector(enabled bool) *FaultInjector {
	return &FaultInjector{enabled: enabled}
}

// ShouldDropFirstRequest reports whether the caller should drop the request
// it is handling. It fires at most once over the injector's lifetime, on the
// first call, and only when the injector is enabled. Concurrent first calls
// race on an atomic flag, so exactly one of them wins.
func (f *FaultInjector) ShouldDropFirstRequest() bool {
	if !f.enabled {
		return false
	}

	return atomic.CompareAndSwapUint32(&f.tripped, 0, 1)
}

// Tripped reports whether the injector has already fired.
func (f *FaultInjector) Tripped() bool {
	return atomic.LoadUint32(&f.tripped) == 1
}
