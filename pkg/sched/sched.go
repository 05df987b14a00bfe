// Package sched provides the cooperative event loop the streaming core
// runs on.
//
// All state changes happen in tasks run one at a time on the loop. Blocking
// work (network fetches, image decodes) runs off the loop via Go and posts
// its results back. Deferred continuations (yielding the load queue worker,
// re-enabling camera controls after an animation) use Post and After.
package sched

import (
	"time"
)

// Scheduler runs tasks on a single logical thread.
type Scheduler interface {
	// Post runs fn on the loop after every task already posted.
	Post(fn func())
	// After runs fn on the loop once d has elapsed.
	After(d time.Duration, fn func())
	// Go runs blocking work off the loop. Work must hand any state
	// change back to the loop with Post.
	Go(work func())
}
