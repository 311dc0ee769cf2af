package proc

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// Debouncer absorbs rapid repeats of the same action in the same guild,
// mainly double-clicked buttons. Each guild:action pair gets its own
// limiter allowing one event per window.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the action should run now.
func (d *Debouncer) Allow(guildID snowflake.ID, action string) bool {
	key := guildID.String() + ":" + action

	d.mu.Lock()
	// Keep the map from growing without bound across many guilds.
	if len(d.limiters) > 100 {
		d.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := d.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.window), 1)
		d.limiters[key] = lim
	}
	d.mu.Unlock()

	return lim.Allow()
}
