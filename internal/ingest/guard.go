package ingest

import (
	"sync"
	"time"
)

type submissionKey struct {
	name         string
	size         int64
	lastModified int64
}

// Guard absorbs duplicate submissions of the same file fired in quick
// succession (double change/drop events) without blocking different files.
// Concurrent uploads of distinct files proceed independently; only a second
// copy of a file already in flight, or a resubmission of the same file within
// the cooldown, is rejected.
type Guard struct {
	mu       sync.Mutex
	cooldown time.Duration
	inFlight map[submissionKey]bool
	seen     map[submissionKey]time.Time
	now      func() time.Time
}

func NewGuard(cooldown time.Duration) *Guard {
	return &Guard{
		cooldown: cooldown,
		inFlight: make(map[submissionKey]bool),
		seen:     make(map[submissionKey]time.Time),
		now:      time.Now,
	}
}

func keyFor(f MediaFile) submissionKey {
	return submissionKey{
		name:         f.Name,
		size:         f.Size,
		lastModified: f.LastModified.UnixMilli(),
	}
}

// Begin reports whether the file may be processed. On success the caller owns
// the in-flight slot for this file and must call Finish with the same file.
func (g *Guard) Begin(f MediaFile) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := keyFor(f)
	if g.inFlight[key] {
		return false
	}
	if at, ok := g.seen[key]; ok && g.now().Sub(at) < g.cooldown {
		return false
	}

	g.prune()
	g.inFlight[key] = true
	g.seen[key] = g.now()
	return true
}

// Finish releases the in-flight slot. The cooldown entry stays behind so an
// immediate resubmission of the same file is still absorbed.
func (g *Guard) Finish(f MediaFile) {
	g.mu.Lock()
	delete(g.inFlight, keyFor(f))
	g.mu.Unlock()
}

// prune drops cooldown entries that can no longer reject anything. Called with
// the lock held.
func (g *Guard) prune() {
	for key, at := range g.seen {
		if !g.inFlight[key] && g.now().Sub(at) >= g.cooldown {
			delete(g.seen, key)
		}
	}
}
