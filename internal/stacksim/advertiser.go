package stacksim

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Advertiser rotates advertisement payloads from the dispatch loop, the
// way a firmware advertising manager re-arms its data once per
// main-loop pass. All state is owned by the dispatch goroutine; Tick
// and the accessors must not race with it.
type Advertiser struct {
	sim      *Sim
	log      *logrus.Entry
	interval time.Duration
	payloads [][]byte

	next      int
	last      time.Time
	rotations int
}

// NewAdvertiser builds an advertiser over sim. A non-positive interval
// rotates on every tick.
func NewAdvertiser(sim *Sim, interval time.Duration, payloads [][]byte, logger *logrus.Logger) *Advertiser {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Advertiser{
		sim:      sim,
		log:      logger.WithField("module", "advertiser"),
		interval: interval,
		payloads: payloads,
	}
}

// Tick runs once per dispatch pass while the stack is active.
func (a *Advertiser) Tick() {
	if len(a.payloads) == 0 {
		return
	}
	now := time.Now()
	if !a.last.IsZero() && now.Sub(a.last) < a.interval {
		return
	}
	a.last = now
	payload := a.payloads[a.next%len(a.payloads)]
	a.next++
	a.rotations++
	if a.sim.SetAdvData(payload) {
		a.log.WithField("rotation", a.rotations).Trace("Advertisement payload rotated")
	}
}

// Rotations returns how many payload changes have been applied.
func (a *Advertiser) Rotations() int { return a.rotations }
