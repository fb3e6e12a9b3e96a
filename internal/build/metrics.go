package build

import (
	"sync"
	"time"
)

// Metrics tracks page builds.
type Metrics struct {
	TotalPages      int64         `json:"total_pages"`
	SuccessfulPages int64         `json:"successful_pages"`
	FailedPages     int64         `json:"failed_pages"`
	CacheHits       int64         `json:"cache_hits"`
	Bytes           int64         `json:"bytes"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
	mutex           sync.RWMutex
}

// NewMetrics creates an empty tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record adds one page result.
func (m *Metrics) Record(page Page) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalPages++
	m.TotalDuration += page.Duration
	if page.CacheHit {
		m.CacheHits++
	}
	if page.Err != nil {
		m.FailedPages++
	} else {
		m.SuccessfulPages++
		m.Bytes += page.Bytes
	}
	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalPages)
}

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() *Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return &Metrics{
		TotalPages:      m.TotalPages,
		SuccessfulPages: m.SuccessfulPages,
		FailedPages:     m.FailedPages,
		CacheHits:       m.CacheHits,
		Bytes:           m.Bytes,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
	}
}

// CacheHitRate returns the cache hit rate as a percentage.
func (m *Metrics) CacheHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalPages == 0 {
		return 0.0
	}
	return float64(m.CacheHits) / float64(m.TotalPages) * 100.0
}

// SuccessRate returns the success rate as a percentage.
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalPages == 0 {
		return 0.0
	}
	return float64(m.SuccessfulPages) / float64(m.TotalPages) * 100.0
}
