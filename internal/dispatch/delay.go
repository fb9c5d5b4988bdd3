package dispatch

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/script"
	"github.com/wolfman30/chatrelay/internal/senders"
)

// Phase names the kind of wait applied between two turns.
type Phase string

const (
	PhaseReply Phase = "reply_latency"
	PhasePause Phase = "inter_exchange_pause"
)

// DelayPlanner draws the wait between consecutive turns.
//
// Global mode: an exchange is ExchangeLength turns (default: one per sender).
// Inside an exchange the wait is drawn from the reply bounds; after the
// last turn of an exchange it is drawn from the pause bounds.
//
// Per-sender mode: the wait is drawn from the next turn's sender bounds,
// falling back to the global phase bounds when that sender has none.
type DelayPlanner struct {
	mode        string
	reply       Bounds
	pause       Bounds
	exchangeLen int
	registry    *senders.Registry
	rnd         *rand.Rand
}

// NewDelayPlanner builds a planner. src may be nil for a time-seeded source.
func NewDelayPlanner(opts Options, registry *senders.Registry, src rand.Source) *DelayPlanner {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	exchange := opts.ExchangeLength
	if exchange <= 0 {
		exchange = registry.Len()
	}
	if exchange <= 0 {
		exchange = 1
	}
	return &DelayPlanner{
		mode:        opts.mode(),
		reply:       opts.ReplyDelay,
		pause:       opts.PauseDelay,
		exchangeLen: exchange,
		registry:    registry,
		rnd:         rand.New(src),
	}
}

// Next returns the wait to apply after current and before next.
func (p *DelayPlanner) Next(current, next script.Turn) (time.Duration, Phase, Bounds) {
	phase := PhaseReply
	bounds := p.reply
	if (current.Index+1)%p.exchangeLen == 0 {
		phase = PhasePause
		bounds = p.pause
	}
	if p.mode == config.DelayModePerSender {
		if s, ok := p.registry.Get(next.SenderID); ok && s.HasDelayBounds() {
			bounds = Bounds{Min: s.MinDelay, Max: s.MaxDelay}
		}
	}
	return p.draw(bounds), phase, bounds
}

// draw returns a duration uniformly distributed in [Min, Max].
func (p *DelayPlanner) draw(b Bounds) time.Duration {
	lo := seconds(b.Min)
	hi := seconds(b.Max)
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rnd.Float64()*float64(hi-lo))
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
