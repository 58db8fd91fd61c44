package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
	"github.com/temoto/fridgesim/log2"
)

// Limited exponential backoff for retry delays.
// K=1 with Min=Max gives fixed delay, which is what activation retry uses.
// Failure() increases next delay by K, Reset() forgets failures.
//
// Use scenario:
//
//	for {
//	  time.Sleep(backoff.DelayBefore())
//	  err := op()
//	  if err != nil { backoff.Failure() } else { backoff.Reset() }
//	}
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
	Log *log2.Log
}

// DelayBefore is the wait left until next attempt.
// Time passed since last Failure is subtracted, zero when no failures recorded.
func (b *Backoff) DelayBefore() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	delay := b.limit(next)
	since := atomic_clock.Since(&b.last)
	b.Log.Debugf("backoff delay next=%s delay=%s since=%s", next, delay, since)
	if since >= delay {
		return 0
	}
	return b.round(delay - since)
}

// Increase next delay and remember failure time.
func (b *Backoff) Failure() {
	next := time.Duration(atomic.LoadInt64(&b.next))
	k := b.K
	if k == 0 {
		k = 1
	}
	next = time.Duration(float32(next) * k)
	next = b.limit(next)
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(next))
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
