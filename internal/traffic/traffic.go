package traffic

import (
	"sync"
	"time"

	"github.com/kjstillabower/weather-deck/internal/models"
)

const maxAge = 5 * time.Minute

var defaultTracker Tracker

// RecordLoaded records a location load that reached Loaded.
func RecordLoaded() {
	defaultTracker.RecordLoaded()
}

// RecordFailure records a location load that ended Failed with the given kind.
func RecordFailure(kind models.ErrorKind) {
	defaultTracker.RecordFailure(kind)
}

// LoadCount returns the number of completed loads (loaded + failed) within the window.
func LoadCount(window time.Duration) int {
	return defaultTracker.LoadCount(window)
}

// FailureRate returns (failures, total) within the window.
func FailureRate(window time.Duration) (failures, total int) {
	return defaultTracker.FailureRate(window)
}

// FailuresByKind returns failures within the window grouped by kind.
func FailuresByKind(window time.Duration) map[models.ErrorKind]int {
	return defaultTracker.FailuresByKind(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type failure struct {
	at   time.Time
	kind models.ErrorKind
}

// Tracker maintains sliding windows of load outcomes. /health reads it to
// report whether recent loads are mostly failing.
type Tracker struct {
	mu        sync.Mutex
	loadTimes []time.Time
	failures  []failure
	nowFn     func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.nowFn != nil {
		return t.nowFn()
	}
	return time.Now()
}

// RecordLoaded records a successful load.
func (t *Tracker) RecordLoaded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.loadTimes = append(t.loadTimes, now)
	t.pruneLocked(now)
}

// RecordFailure records a failed load of the given kind.
func (t *Tracker) RecordFailure(kind models.ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.failures = append(t.failures, failure{at: now, kind: kind})
	t.pruneLocked(now)
}

// LoadCount returns the number of outcomes within the window.
func (t *Tracker) LoadCount(window time.Duration) int {
	_, total := t.FailureRate(window)
	return total
}

// FailureRate returns (failureCount, totalCount) within the window.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	loaded := 0
	for _, ts := range t.loadTimes {
		if !ts.Before(cutoff) {
			loaded++
		}
	}
	for _, f := range t.failures {
		if !f.at.Before(cutoff) {
			failures++
		}
	}
	return failures, failures + loaded
}

// FailuresByKind returns failures within the window grouped by kind.
func (t *Tracker) FailuresByKind(window time.Duration) map[models.ErrorKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	out := make(map[models.ErrorKind]int)
	for _, f := range t.failures {
		if !f.at.Before(cutoff) {
			out[f.kind]++
		}
	}
	return out
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadTimes = nil
	t.failures = nil
}

// pruneLocked drops entries older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(t.loadTimes) && t.loadTimes[i].Before(cutoff); i++ {
	}
	if i > 0 {
		t.loadTimes = append(t.loadTimes[:0], t.loadTimes[i:]...)
	}
	j := 0
	for ; j < len(t.failures) && t.failures[j].at.Before(cutoff); j++ {
	}
	if j > 0 {
		t.failures = append(t.failures[:0], t.failures[j:]...)
	}
}
