package cache

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Metrics accumulates the call/hit/miss/skip counters the teacher's
// vm/profiling.go tracked per function, adapted here to the cache's own
// unit of work: one counter set per host code object rather than per PHP
// function call.
type Metrics struct {
	mu     sync.Mutex
	calls  uint64
	hits   uint64
	misses uint64
	skips  uint64
	byCode map[string]*codeStats
}

type codeStats struct {
	calls uint64
	hits  uint64
}

// NewMetrics builds an empty metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{byCode: map[string]*codeStats{}}
}

func (m *Metrics) RecordCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *Metrics) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *Metrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *Metrics) RecordSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips++
}

// RecordCodeHit bumps the per-code-object call/hit counters, mirroring the
// teacher's FunctionCallInfo bookkeeping (vm/profiling.go) but keyed by
// translated code name instead of a PHP callable name.
func (m *Metrics) RecordCodeHit(codeName string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byCode[codeName]
	if !ok {
		s = &codeStats{}
		m.byCode[codeName] = s
	}
	s.calls++
	if hit {
		s.hits++
	}
}

// Snapshot is a point-in-time, humanized view of the counters suitable for
// printing from the CLI.
type Snapshot struct {
	Calls, Hits, Misses, Skips string
	HitRate                    string
	Hotspots                   []HotspotEntry
}

// HotspotEntry ranks one code object by call volume, mirroring the
// teacher's HotspotRank/HotspotStats shape.
type HotspotEntry struct {
	CodeName string
	Calls    string
	HitRate  string
}

// Snapshot renders the counters through go-humanize, the way a CLI report
// in this corpus formats counts for a human rather than printing raw
// integers (SPEC_FULL §3).
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rate float64
	if m.calls > 0 {
		rate = float64(m.hits) / float64(m.calls) * 100
	}

	names := maps.Keys(m.byCode)
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case m.byCode[a].calls > m.byCode[b].calls:
			return -1
		case m.byCode[a].calls < m.byCode[b].calls:
			return 1
		default:
			return 0
		}
	})

	top := 10
	if len(names) < top {
		top = len(names)
	}
	hotspots := make([]HotspotEntry, 0, top)
	for _, name := range names[:top] {
		s := m.byCode[name]
		var hr float64
		if s.calls > 0 {
			hr = float64(s.hits) / float64(s.calls) * 100
		}
		hotspots = append(hotspots, HotspotEntry{
			CodeName: name,
			Calls:    humanize.Comma(int64(s.calls)),
			HitRate:  fmt.Sprintf("%.1f%%", hr),
		})
	}

	return Snapshot{
		Calls:    humanize.Comma(int64(m.calls)),
		Hits:     humanize.Comma(int64(m.hits)),
		Misses:   humanize.Comma(int64(m.misses)),
		Skips:    humanize.Comma(int64(m.skips)),
		HitRate:  fmt.Sprintf("%.1f%%", rate),
		Hotspots: hotspots,
	}
}
