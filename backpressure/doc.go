// Package backpressure is documented in valve.go; this file only
// carries the quick-start example.
//
// Drop with PreferNewerItems=false. The source this was distilled
// from documents two intents for Drop — discard the incoming item, or
// evict the oldest buffered one to make room — but only implements
// the former regardless of PreferNewerItems. This package keeps that
// behavior rather than inventing an eviction path the source never
// exercised; PreferNewerItems is accepted for configuration
// compatibility but does not currently change Drop's behavior.
package backpressure

import (
	"context"
	"fmt"
	"time"

	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// Example shows Drop: the valve turns active once the estimated buffer
// reaches the high water mark, and while active it discards incoming
// items whenever the estimated buffer is at MaxBufferSize or above.
func Example() {
	cfg := Config{Strategy: Drop, MaxBufferSize: 4, HighWaterMarkThreshold: 0.5, LowWaterMarkThreshold: 0.25}
	v := New[string, int](cfg)
	sess := session.New("demo", time.Now(), cfg)

	h := seq.FromSlice[string, int]([]int{1, 2, 3, 4, 5, 6, 7, 8}, nil)

	var got []int
	v.Wrap(sess)(context.Background(), "req", h)(func(item int, err error) bool {
		got = append(got, item)
		return true
	})

	fmt.Println(len(got) <= 8)
	// Output:
	// true
}
