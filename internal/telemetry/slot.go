package telemetry

import "sync/atomic"

// Slot is the single shared snapshot cell: one writer (Aggregator),
// any number of readers. Replacement is atomic at whole-record
// granularity, readers never observe a torn snapshot.
type Slot struct {
	v atomic.Value // *VehicleSnapshot
}

func (s *Slot) Store(snap *VehicleSnapshot) {
	if snap == nil {
		panic("code error Slot.Store(nil)")
	}
	s.v.Store(snap)
}

// Load returns the current snapshot or nil before the first publish.
// Callers must treat the result as read-only.
func (s *Slot) Load() *VehicleSnapshot {
	x := s.v.Load()
	if x == nil {
		return nil
	}
	return x.(*VehicleSnapshot)
}
