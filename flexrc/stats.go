package flexrc

import "sync/atomic"

// Stats contains process-wide counters over all flexrc records.
//
// For Prometheus integration, expose these as:
//   - Counters: Allocated, Freed, IntoOK, IntoFailed, ToOK, ToFailed, Fallbacks
//   - Gauge: Live()
//
// The metrics package provides a ready-made collector.
type Stats struct {
	Allocated  uint64 // Records allocated
	Freed      uint64 // Records released after their last handle dropped
	IntoOK     uint64 // Successful TryIntoOther conversions
	IntoFailed uint64 // Refused TryIntoOther conversions
	ToOK       uint64 // Successful TryToOther conversions
	ToFailed   uint64 // Refused TryToOther conversions
	Fallbacks  uint64 // Payload copies made by IntoOther/ToOther
	_          uint64 // Padding to align to 64 bytes
}

// Live returns the number of records allocated and not yet released.
func (s Stats) Live() uint64 {
	return s.Allocated - s.Freed
}

// statsCollector updates the process-wide counters.
//
// Allocation and release counters are hit from every goroutine creating or
// freeing records, so each sits on its own cache line.
type statsCollector struct {
	allocated atomic.Uint64
	_         [56]byte
	freed     atomic.Uint64
	_         [56]byte
	// Conversions are rarer and share a line.
	intoOK     atomic.Uint64
	intoFailed atomic.Uint64
	toOK       atomic.Uint64
	toFailed   atomic.Uint64
	fallbacks  atomic.Uint64
}

var stats statsCollector

func (c *statsCollector) recordAlloc()    { c.allocated.Add(1) }
func (c *statsCollector) recordFree()     { c.freed.Add(1) }
func (c *statsCollector) recordFallback() { c.fallbacks.Add(1) }

func (c *statsCollector) recordInto(ok bool) {
	if ok {
		c.intoOK.Add(1)
	} else {
		c.intoFailed.Add(1)
	}
}

func (c *statsCollector) recordTo(ok bool) {
	if ok {
		c.toOK.Add(1)
	} else {
		c.toFailed.Add(1)
	}
}

func (c *statsCollector) snapshot() Stats {
	// Freed before allocated, so Live never underflows.
	freed := c.freed.Load()
	return Stats{
		Allocated:  c.allocated.Load(),
		Freed:      freed,
		IntoOK:     c.intoOK.Load(),
		IntoFailed: c.intoFailed.Load(),
		ToOK:       c.toOK.Load(),
		ToFailed:   c.toFailed.Load(),
		Fallbacks:  c.fallbacks.Load(),
	}
}

// ReadStats returns a snapshot of the process-wide counters.
func ReadStats() Stats {
	return stats.snapshot()
}
