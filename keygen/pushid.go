package keygen

import (
	"math/rand/v2"
	"sync"
	"time"
)

// pushChars is sorted in ASCII order so that encoded timestamps compare the
// same way as the numbers they encode.
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

const (
	pushTimeChars = 8
	pushRandChars = 12
	// PushIDLength is the length of every generated push ID.
	PushIDLength = pushTimeChars + pushRandChars
)

// PushIDGenerator generates Firebase-style push IDs: 8 characters of
// millisecond timestamp followed by 12 random characters. Keys generated in
// the same millisecond reuse the previous random suffix incremented by one,
// so every key sorts after the one before it.
type PushIDGenerator struct {
	mu       sync.Mutex
	now      func() time.Time
	rand     func() int
	lastTime int64
	lastRand [pushRandChars]int
}

// NewPushIDGenerator creates a PushIDGenerator using the wall clock.
func NewPushIDGenerator() *PushIDGenerator {
	return &PushIDGenerator{
		now:  time.Now,
		rand: func() int { return rand.IntN(len(pushChars)) },
	}
}

// NewKey returns the next push ID.
func (g *PushIDGenerator) NewKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.lastTime {
		// Clock moved backwards; stay on the last timestamp to keep order.
		now = g.lastTime
	}
	duplicate := now == g.lastTime
	g.lastTime = now

	var id [PushIDLength]byte
	ts := now
	for i := pushTimeChars - 1; i >= 0; i-- {
		id[i] = pushChars[ts%64]
		ts /= 64
	}

	if !duplicate {
		for i := range g.lastRand {
			g.lastRand[i] = g.rand()
		}
	} else {
		i := pushRandChars - 1
		for ; i >= 0 && g.lastRand[i] == 63; i-- {
			g.lastRand[i] = 0
		}
		if i >= 0 {
			g.lastRand[i]++
		}
	}

	for i, r := range g.lastRand {
		id[pushTimeChars+i] = pushChars[r]
	}
	return string(id[:])
}
