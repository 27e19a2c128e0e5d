package core

import "time"

const AVG_COUNT uint8 = 30

// UploadMetrics tracks staging traffic for one transfer manager. It is not
// safe for concurrent use, matching the manager that owns it.
type UploadMetrics struct {
	BytesStaged        uint64
	TransfersSubmitted uint64
	TransfersReclaimed uint64
	PendingHighWater   int

	latencyCounter uint8
	latencies      [AVG_COUNT]time.Duration
	latencySamples uint8
	AvgLatency     time.Duration
}

func NewUploadMetrics() *UploadMetrics {
	return &UploadMetrics{}
}

// RecordStaged accounts a new staging allocation and the resulting pending
// set size.
func (m *UploadMetrics) RecordStaged(size uint64, pending int) {
	m.BytesStaged += size
	if pending > m.PendingHighWater {
		m.PendingHighWater = pending
	}
}

func (m *UploadMetrics) RecordSubmitted() {
	m.TransfersSubmitted++
}

// RecordReclaimed accounts one reclaimed transfer together with how long it
// stayed pending since submission. The average covers the last AVG_COUNT
// samples.
func (m *UploadMetrics) RecordReclaimed(pendingFor time.Duration) {
	m.TransfersReclaimed++

	m.latencies[m.latencyCounter] = pendingFor
	m.latencyCounter = (m.latencyCounter + 1) % AVG_COUNT
	if m.latencySamples < AVG_COUNT {
		m.latencySamples++
	}

	var sum time.Duration
	for i := uint8(0); i < m.latencySamples; i++ {
		sum += m.latencies[i]
	}
	m.AvgLatency = sum / time.Duration(m.latencySamples)
}

// InFlight is the number of submitted transfers not yet reclaimed.
func (m *UploadMetrics) InFlight() uint64 {
	return m.TransfersSubmitted - m.TransfersReclaimed
}
