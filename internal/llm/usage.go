package llm

import (
	"sync"
	"time"
)

// UsageStatsKey names the usage entry in worker stats.
const UsageStatsKey = "llm_usage"

// UsageStats summarizes model calls made by one process.
type UsageStats struct {
	RequestsCount int64      `json:"requests_count"`
	TotalTokens   int64      `json:"total_tokens"`
	ErrorsCount   int64      `json:"errors_count"`
	LastRequest   *time.Time `json:"last_request"`
}

// Add merges other into s. LastRequest keeps the later of the two.
func (s *UsageStats) Add(other UsageStats) {
	s.RequestsCount += other.RequestsCount
	s.TotalTokens += other.TotalTokens
	s.ErrorsCount += other.ErrorsCount
	if other.LastRequest != nil && (s.LastRequest == nil || other.LastRequest.After(*s.LastRequest)) {
		t := *other.LastRequest
		s.LastRequest = &t
	}
}

// Usage is a concurrency-safe UsageStats accumulator.
type Usage struct {
	mu    sync.Mutex
	stats UsageStats
	now   func() time.Time
}

// NewUsage returns an empty tracker.
func NewUsage() *Usage {
	return &Usage{now: time.Now}
}

// Record counts one request.
func (u *Usage) Record(tokens int, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now().UTC()
	u.stats.RequestsCount++
	u.stats.TotalTokens += int64(tokens)
	u.stats.LastRequest = &now
	if err != nil {
		u.stats.ErrorsCount++
	}
}

// Snapshot returns a copy of the current counters.
func (u *Usage) Snapshot() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := u.stats
	if s.LastRequest != nil {
		t := *s.LastRequest
		s.LastRequest = &t
	}
	return s
}
