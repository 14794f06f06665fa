package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/MrEthical07/sessionflow/session"
)

// CounterKey is the SessionData key of the demo counter.
const CounterKey = "counter"

// RunIncrementCounter bumps the session counter and saves the session.
// Concurrent requests on the same session can lose increments.
func RunIncrementCounter(ctx context.Context, sess *session.Session, sessions Sessions) (int, error) {
	if sess == nil || sessions == nil {
		return 0, fmt.Errorf("counter: no session")
	}

	current, _ := sess.Get(CounterKey)
	next := counterValue(current) + 1
	sess.Set(CounterKey, next)

	if err := sessions.Save(ctx, sess); err != nil {
		return 0, fmt.Errorf("save session: %w", err)
	}
	return next, nil
}

// counterValue reads a counter that may have gone through a JSON round
// trip. Anything unreadable counts as zero.
func counterValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	return 0
}
