// Package circuit is documented in circuit.go; this file only carries
// the quick-start example.
package circuit

import (
	"fmt"

	"github.com/riftlabs/dispatchcore/session"
)

// Example demonstrates admitting a call, recording its outcome, and
// observing a trip once the failure rate crosses the configured
// threshold. This is the same Registry.Breaker-then-Admit path
// WrapStream uses; the breaker's own mutex-guarded admission counter
// is what actually serializes concurrent Half-Open trials, so there
// is no separate registry-level admission step to call first.
func Example() {
	rt := session.RequestType("orders.create")
	reg := NewRegistry()
	cfg := Sensitive()

	for i := 0; i < 3; i++ {
		b := reg.Breaker(rt, cfg)
		if err := b.Admit(); err != nil {
			fmt.Println("refused:", err)
			continue
		}
		b.Record(false, fmt.Errorf("downstream unavailable"))
	}

	fmt.Println(reg.Breaker(rt, cfg).State())
	// Output:
	// open
}
