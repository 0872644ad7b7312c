package storify

import (
	"sync"
	"time"
)

// IDSource hands out timestamp-derived ids (Unix microseconds). Ids from
// one source strictly increase even when the clock stands still.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMicro()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
