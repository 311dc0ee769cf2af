package proc

import (
	"sync"
	"time"

	"github.com/leeineian/hachimi/sys"
)

// RenderFunc pushes a state snapshot to whatever displays it. Renders are
// serialized; a slow render never backs up the player.
type RenderFunc func(st PlayerState) error

// Coalescer turns the player's state changes plus a periodic elapsed-time
// tick into at most one in-flight render. Updates that arrive while a
// render is running replace each other, so the final render always shows
// the latest state.
type Coalescer struct {
	player   *Player
	render   RenderFunc
	interval time.Duration

	updates chan PlayerState
	quit    chan struct{}
	unsub   func()
	once    sync.Once
	wg      sync.WaitGroup
}

func NewCoalescer(p *Player, interval time.Duration, render RenderFunc) *Coalescer {
	c := &Coalescer{
		player:   p,
		render:   render,
		interval: interval,
		updates:  make(chan PlayerState, 1),
		quit:     make(chan struct{}),
	}

	c.unsub = p.Subscribe(c.Notify)

	c.wg.Add(2)
	go c.renderLoop()
	go c.tickLoop()

	sys.LogProgress(sys.MsgProgressStarted, p.GuildID)
	return c
}

// Notify conflates: the pending slot holds only the newest state.
func (c *Coalescer) Notify(st PlayerState) {
	for {
		select {
		case c.updates <- st:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

func (c *Coalescer) renderLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		case st := <-c.updates:
			if err := c.render(st); err != nil {
				sys.LogProgress(sys.MsgProgressRenderFail, err)
			}
		}
	}
}

// tickLoop republishes elapsed time once per interval while actively
// playing. Paused and idle states stay quiet between transitions.
func (c *Coalescer) tickLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			st := c.player.State()
			if st.IsPlaying && !st.IsPaused {
				c.Notify(st)
			}
		}
	}
}

// Stop detaches from the player and halts ticking and rendering. Safe to
// call more than once.
func (c *Coalescer) Stop() {
	c.once.Do(func() {
		c.unsub()
		close(c.quit)
		sys.LogProgress(sys.MsgProgressStopped, c.player.GuildID)
	})
	c.wg.Wait()
}
