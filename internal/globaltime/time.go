// Package globaltime is the process clock. Tests pin it with SetMockTime so
// window boundaries and story timestamps are reproducible.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}

// Floor truncates t (in UTC) to a multiple of granularity. A non-positive
// granularity returns t unchanged.
func Floor(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(granularity)
}

// Hour floors t to the start of its UTC hour.
func Hour(t time.Time) time.Time {
	return Floor(t, time.Hour)
}

// Window returns the half-open range [end-period, end) where end is the
// current time floored to granularity.
func Window(period, granularity time.Duration) (time.Time, time.Time) {
	end := Floor(UTC(), granularity)
	return end.Add(-period), end
}
