package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	// ErrAgentUnavailable means every provider was exhausted. It is distinct
	// from a wrong answer: no provider produced plausible output.
	ErrAgentUnavailable = errors.New("agent unavailable: all providers exhausted")
	// ErrPaused means the budget guard refused the call.
	ErrPaused = errors.New("spending paused by budget guard")
)

// Failover re-issues a logical call across engines in order.
type Failover struct {
	engines []*Engine
	notify  NoticeFunc
}

// NewFailover creates a chain. The first engine is the primary provider.
func NewFailover(notify NoticeFunc, engines ...*Engine) *Failover {
	return &Failover{engines: engines, notify: notify}
}

// Providers returns the provider names in failover order.
func (f *Failover) Providers() []string {
	names := make([]string, 0, len(f.engines))
	for _, e := range f.engines {
		names = append(names, e.Name())
	}
	return names
}

// Call returns the first successful result. When a provider is exhausted a
// switching_provider notice is emitted before the next one is tried.
func (f *Failover) Call(ctx context.Context, req Request) (Result, error) {
	var last Result
	for i, e := range f.engines {
		res := e.Call(ctx, req)
		last = res
		switch {
		case res.OK:
			return res, nil
		case res.Outcome == OutcomeAborted:
			if res.Err != nil {
				return res, res.Err
			}
			return res, ctx.Err()
		case res.Outcome == OutcomePaused:
			return res, ErrPaused
		}

		if i+1 < len(f.engines) {
			next := f.engines[i+1].Name()
			log.Printf("[retry] %s %s on %s, switching to %s", req.Role, res.Outcome, e.Name(), next)
			f.emit(Notice{
				Kind:     NoticeSwitchingProvider,
				Provider: e.Name(),
				Role:     req.Role,
				Attempt:  res.Attempts,
				Message:  fmt.Sprintf("%s %s, switching to %s", e.Name(), res.Outcome, next),
			})
		}
	}
	return last, ErrAgentUnavailable
}

func (f *Failover) emit(n Notice) {
	if f.notify == nil {
		return
	}
	n.Time = time.Now()
	f.notify(n)
}
