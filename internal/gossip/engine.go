package gossip

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/clock"
	"github.com/aryanbagade/gossip-fabric/internal/digest"
	"github.com/aryanbagade/gossip-fabric/internal/failure"
	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/sampler"
	"github.com/aryanbagade/gossip-fabric/internal/store"
	"github.com/aryanbagade/gossip-fabric/internal/voi"
)

// AnalyticsFlusher is the narrow collaborator a push-mode flush ships
// retired snapshots to. The engine depends only on this interface so
// the telemetry sink can be swapped or stubbed.
type AnalyticsFlusher interface {
	FlushSnapshots(ctx context.Context, nodeIP string, snapshots map[int64]map[model.PeerKey]model.Record) error
}

// TelemetryRecorder receives per-round VOI events for local staging,
// independent of whether a flush is due this cycle.
type TelemetryRecorder interface {
	RecordRound(summary voi.RoundSummary, events []voi.Event)
}

// Hooks receives ambient process counters as the loop runs. It never
// influences protocol decisions; a nil Hooks is a no-op, so tests and
// callers that don't care about metrics can omit it.
type Hooks interface {
	CycleCompleted()
	ExchangeAttempted()
	ExchangeFailed()
	PeerEvicted()
}

// Config carries the /start_node tunables that shape the gossip loop.
type Config struct {
	Self            model.PeerKey
	SelfIP          string
	SelfPort        int
	TargetCount     int
	GossipRate      time.Duration
	PushMode        bool
	ExchangeTimeout time.Duration
}

// Engine drives the gossip main loop: once per gossip_rate while
// alive, it advances the cycle, samples the host, VOI-filters the
// result, and exchanges with a random subset of peers. It favors
// plain anti-entropy exchange and an accrual failure detector over
// SWIM-style indirect probing, since the exchange's own retry cadence
// against a fresh random sample already surfaces dead peers quickly.
type Engine struct {
	cfg      Config
	clock    *clock.Counter
	store    *store.Store
	members  *node.Membership
	detector *failure.Detector
	sampler  *sampler.Sampler
	voi      *voi.Filter
	client   *Client
	sink     AnalyticsFlusher
	telem    TelemetryRecorder
	hooks    Hooks
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cycle   int64
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewEngine wires every collaborator the gossip loop needs.
func NewEngine(
	cfg Config,
	c *clock.Counter,
	st *store.Store,
	members *node.Membership,
	det *failure.Detector,
	smp *sampler.Sampler,
	filter *voi.Filter,
	client *Client,
	sink AnalyticsFlusher,
	telem TelemetryRecorder,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		cfg: cfg, clock: c, store: st, members: members, detector: det,
		sampler: smp, voi: filter, client: client, sink: sink, telem: telem, log: log,
	}
}

// SetHooks attaches an ambient metrics collaborator. Optional; call
// before Start.
func (e *Engine) SetHooks(h Hooks) {
	e.hooks = h
}

// Start begins the clock and gossip loops. Start is idempotent: a
// second call while already running is a no-op, matching /start_node
// being safe to call against an already-alive node.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.mu.Unlock()

	e.clock.Start()
	go e.loop(ctx)
}

// Stop sets is_alive=false: the loop observes this at its next
// wakeup and exits cooperatively.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	e.clock.Stop()
	<-done
}

// Running reports whether the gossip loop is currently active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cycle returns the number of gossip cycles begun so far, counting a
// cycle in progress and cycles that ended early.
func (e *Engine) Cycle() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.GossipRate)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle advances the time_key, samples and VOI-filters the host's
// own metrics, publishes the result, then fans out peer exchanges
// concurrently. Per-peer exchanges run in a worker pool sized by
// target_count and never hold the store's lock across an outbound
// call; the store package's own methods are each individually locked.
func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.mu.Unlock()

	if e.cfg.PushMode && cycle != 0 && cycle%10 == 0 {
		e.flush(ctx)
	}

	k := e.clock.Value()
	if err := e.store.OpenNewTimeKey(k); err != nil {
		e.log.Debugw("gossip: time_key already open this tick, skipping", "time_key", k, "error", err)
		return
	}

	app := e.sampler.Sample(ctx)
	filtered, events, summary := e.voi.Apply(cycle, string(e.cfg.Self), app)
	if e.telem != nil {
		e.telem.RecordRound(summary, events)
	}

	rec := model.Record{
		Counter:   k,
		Cycle:     cycle,
		NodeState: model.NodeState{ID: string(e.cfg.Self), IP: e.cfg.SelfIP, Port: e.cfg.SelfPort},
		HBState:   model.HBState{Timestamp: k, NodeAlive: true},
		AppState:  filtered,
	}
	rec, err := digest.Stamp(rec)
	if err != nil {
		e.log.Errorw("gossip: failed to stamp self record's digest, skipping publish this cycle", "error", err)
		return
	}
	if err := e.store.PutSelf(k, rec); err != nil {
		e.log.Errorw("gossip: put_self failed", "time_key", k, "error", err)
		return
	}

	peers, err := e.members.Sample(e.cfg.Self, e.cfg.TargetCount)
	if err != nil {
		e.log.Errorw("gossip: peer sampling failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.exchangeWith(ctx, peer, k, cycle)
		}()
	}
	wg.Wait()

	if e.hooks != nil {
		e.hooks.CycleCompleted()
	}

	e.log.Debugw("gossip: cycle complete",
		"cycle", cycle, "time_key", k,
		"sent", summary.SentCount, "filtered", summary.FilteredCount,
		"peers_contacted", len(peers),
	)
}

// exchangeWith drives one complete peer-exchange against peer. A
// failure here is local-only: it never aborts the cycle for the
// remaining peers.
func (e *Engine) exchangeWith(ctx context.Context, peer model.PeerKey, k, cycle int64) {
	exCtx, cancel := context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
	defer cancel()

	addr, ok := e.members.Get(peer)
	if !ok {
		return
	}

	if e.hooks != nil {
		e.hooks.ExchangeAttempted()
	}

	meta := e.store.Metadata(k)
	selfRec := e.store.Subset(k, []model.PeerKey{e.cfg.Self})[e.cfg.Self]

	resp, err := e.client.Exchange(exCtx, addr, ExchangeRequest{
		Metadata:   meta,
		SelfKey:    e.cfg.Self,
		SelfRecord: selfRec,
	})
	if err != nil {
		e.onExchangeFailure(k, peer, err)
		return
	}

	e.store.Ingest(k, cycle, resp.Updates)

	if len(resp.RequestedKeys) > 0 {
		toSend := e.store.Subset(k, resp.RequestedKeys)
		if err := e.client.Push(exCtx, addr, cycle, toSend); err != nil {
			e.onExchangeFailure(k, peer, err)
			return
		}
	}

	e.detector.RecordSuccess(peer)
	e.store.UpdateHBState(k, peer, func(hb *model.HBState) {
		hb.Timestamp = k
		hb.FailureCount = 0
		hb.FailureList = nil
		hb.NodeAlive = true
	})
}

// onExchangeFailure records one failed exchange attempt: the failure
// counter is incremented unconditionally and mirrored onto peer's
// gossiped HBState, and a peer that crosses EvictionThreshold is
// removed from the membership view and its record in snapshot[k] is
// flagged dead.
func (e *Engine) onExchangeFailure(k int64, peer model.PeerKey, err error) {
	outcome := e.detector.RecordFailure(peer)
	e.log.Warnw("gossip: peer exchange failed", "peer", peer, "failure_count", outcome.FailureCount, "error", err)
	if e.hooks != nil {
		e.hooks.ExchangeFailed()
	}

	e.store.UpdateHBState(k, peer, func(hb *model.HBState) {
		hb.Timestamp = k
		hb.FailureCount = outcome.FailureCount
		hb.FailureList = append(hb.FailureList, strconv.FormatInt(k, 10))
	})

	if outcome.Evicted {
		e.members.Remove(peer)
		e.store.MarkDead(k, peer)
		e.detector.Forget(peer)
		e.log.Infow("gossip: peer evicted from membership", "peer", peer)
		if e.hooks != nil {
			e.hooks.PeerEvicted()
		}
	}
}

// flush ships every snapshot but the latest to the analytics sink and,
// on success, retains only the latest. A failed flush leaves the
// snapshots in place for the next attempt.
func (e *Engine) flush(ctx context.Context) {
	if e.sink == nil {
		return
	}
	pending := e.store.AllButLatest()
	if len(pending) == 0 {
		return
	}
	if err := e.sink.FlushSnapshots(ctx, e.cfg.SelfIP, pending); err != nil {
		e.log.Warnw("gossip: push-mode flush failed, retaining snapshots for retry", "error", err)
		return
	}
	e.store.PruneAllButLatest()
}
