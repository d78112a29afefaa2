// Package retry is documented in retry.go; this file only carries the
// quick-start example.
package retry

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/riftlabs/dispatchcore/seq"
)

// Example shows a stream that fails twice before succeeding, wrapped
// in a Conservative retry driver.
func Example() {
	attempts := 0
	unstable := func(ctx context.Context, req string) iter.Seq2[int, error] {
		attempts++
		n := attempts
		return func(yield func(int, error) bool) {
			if n < 2 {
				yield(0, errors.New("transient failure"))
				return
			}
			yield(1, nil)
		}
	}

	cfg := Conservative()
	cfg.InitialDelay = 0
	d := New[string, int](cfg)

	items, err := seq.Collect(d.Wrap()(context.Background(), "demo", unstable))
	fmt.Println(items, err, attempts)
	// Output:
	// [1] <nil> 2
}
