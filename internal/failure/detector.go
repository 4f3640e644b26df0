// Package failure implements the heartbeat/failure detector: a simple
// accrual counter over consecutive send failures. It deliberately
// skips SWIM-style indirect probing — gossip's own retry cadence
// against a random peer sample already surfaces a dead node quickly
// enough that a second round of cross-checking adds little.
package failure

import (
	"sync"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// EvictionThreshold is the fixed design constant: three consecutive
// failed exchanges mark a peer dead.
const EvictionThreshold = 3

// Detector tracks per-peer consecutive failure counts and decides
// eviction. It never itself touches the membership view or the
// store; callers apply its verdicts to both. Only the local failure
// detector mutates a peer's hbState failure fields.
type Detector struct {
	mu    sync.Mutex
	count map[model.PeerKey]int
}

// New creates an empty Detector.
func New() *Detector {
	return &Detector{count: make(map[model.PeerKey]int)}
}

// Outcome is the result of recording one exchange attempt's result.
type Outcome struct {
	FailureCount int
	Evicted      bool
}

// RecordFailure increments peer's consecutive failure count and
// reports whether it has now crossed EvictionThreshold.
func (d *Detector) RecordFailure(peer model.PeerKey) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count[peer]++
	n := d.count[peer]
	return Outcome{FailureCount: n, Evicted: n >= EvictionThreshold}
}

// RecordSuccess resets peer's failure count to zero after a
// successful exchange.
func (d *Detector) RecordSuccess(peer model.PeerKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.count, peer)
}

// FailureCount reports peer's current consecutive failure count.
func (d *Detector) FailureCount(peer model.PeerKey) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count[peer]
}

// Forget drops all bookkeeping for peer, used once it has been
// evicted from the membership view so a later re-join starts clean.
func (d *Detector) Forget(peer model.PeerKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.count, peer)
}
