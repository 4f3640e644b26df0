package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/clock"
	"github.com/aryanbagade/gossip-fabric/internal/failure"
	"github.com/aryanbagade/gossip-fabric/internal/gossip"
	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/sampler"
	"github.com/aryanbagade/gossip-fabric/internal/store"
	"github.com/aryanbagade/gossip-fabric/internal/telemetry"
	"github.com/aryanbagade/gossip-fabric/internal/voi"
)

// StartRequest is the JSON body of POST /start_node.
type StartRequest struct {
	NodeList          map[model.PeerKey]model.Peer `json:"node_list"`
	TargetCount       int                           `json:"target_count"`
	GossipRate        int                           `json:"gossip_rate"` // seconds
	DatabaseAddress   string                        `json:"database_address"`
	MonitoringAddress string                        `json:"monitoring_address"`
	NodeIP            string                        `json:"node_ip"`
	IsSendDataBack    bool                          `json:"is_send_data_back"`
	PushMode          bool                          `json:"push_mode"`
	ClientPort        int                           `json:"client_port"`
}

// Controller owns one node's full lifecycle: the shared collaborators
// (clock, store, membership, failure detector) and the gossip engine
// built from them on /start_node, stopped (but not discarded) on
// /stop_node, and wiped on /reset_node. It is an owned aggregate
// handed to HTTP handlers rather than a process-wide singleton, so
// tests can run multiple independent nodes in one process.
type Controller struct {
	self model.PeerKey
	log  *zap.SugaredLogger

	diskPath string

	mu        sync.Mutex
	clock     *clock.Counter
	store     *store.Store
	members   *node.Membership
	detector  *failure.Detector
	voi       *voi.Filter
	sampler   *sampler.Sampler
	buffer    *telemetry.Buffer
	engine    *gossip.Engine
	lastStart StartRequest
	started   bool

	hooks   gossip.Hooks
	metrics gossip.TelemetryRecorder
}

// multiRecorder fans RecordRound out to every recorder it wraps, so
// the engine can feed both the local staging buffer and the process
// metrics recorder through the single TelemetryRecorder it holds.
type multiRecorder []gossip.TelemetryRecorder

func (m multiRecorder) RecordRound(summary voi.RoundSummary, events []voi.Event) {
	for _, r := range m {
		if r != nil {
			r.RecordRound(summary, events)
		}
	}
}

// NewController builds a Controller for self. The gossip engine
// itself is only created once /start_node supplies its runtime
// parameters.
func NewController(self model.PeerKey, diskPath, telemetryDir string, log *zap.SugaredLogger) (*Controller, error) {
	buf, err := telemetry.Open(telemetryDir, string(self), log)
	if err != nil {
		return nil, fmt.Errorf("control: opening telemetry buffer: %w", err)
	}

	return &Controller{
		self:     self,
		log:      log,
		diskPath: diskPath,
		clock:    clock.New(),
		store:    store.New(self),
		members:  node.NewMembership(nil),
		detector: failure.New(),
		voi:      voi.New(voi.DefaultConfig()),
		sampler:  sampler.New(diskPath, log),
		buffer:   buf,
	}, nil
}

// SetHooks attaches the process-wide ambient metrics collaborator,
// applied to every gossip engine this controller builds from then on.
// Optional; call before Start.
func (c *Controller) SetHooks(h gossip.Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

// SetMetricsRecorder attaches an additional TelemetryRecorder that
// runs alongside the local staging buffer rather than replacing it,
// applied to every gossip engine this controller builds from then on.
// Optional; call before Start.
func (c *Controller) SetMetricsRecorder(m gossip.TelemetryRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Start implements POST /start_node: seeds the membership view from
// req.NodeList, builds the gossip engine, and starts the clock and
// gossip loops. Calling Start again while already running first stops
// the existing engine, matching /start_node being idempotent to call.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.engine.Stop()
	}

	c.members = node.NewMembership(peerMap(req.NodeList))
	c.lastStart = req

	var sink gossip.AnalyticsFlusher
	if req.IsSendDataBack && req.MonitoringAddress != "" {
		sink = telemetry.NewHTTPSink(req.MonitoringAddress, req.ClientPort, 30*time.Second)
	}

	gossipRate := time.Duration(req.GossipRate) * time.Second
	if gossipRate <= 0 {
		gossipRate = time.Second
	}

	cfg := gossip.Config{
		Self:            c.self,
		SelfIP:          req.NodeIP,
		SelfPort:        req.ClientPort,
		TargetCount:     req.TargetCount,
		GossipRate:      gossipRate,
		PushMode:        req.PushMode,
		ExchangeTimeout: 30 * time.Second,
	}

	telem := multiRecorder{c.buffer, c.metrics}

	c.engine = gossip.NewEngine(cfg, c.clock, c.store, c.members, c.detector,
		c.sampler, c.voi, gossip.NewClient(30*time.Second), sink, telem, c.log)
	if c.hooks != nil {
		c.engine.SetHooks(c.hooks)
	}

	// The loops outlive the caller's context (for /start_node, the
	// request context, which is cancelled once the response is sent);
	// they end only through Stop or Reset.
	c.engine.Start(context.WithoutCancel(ctx))
	c.started = true
	return nil
}

// Stop implements GET /stop_node: sets is_alive=false. The clock and
// gossip loops observe this at their next wakeup and exit
// cooperatively.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.engine.Stop()
	c.started = false
}

// Reset implements GET /reset_node: returns the controller to its
// initial state (cycle=0, empty store, empty failure list), matching
// scenario 5's restart-idempotence requirement.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.engine.Stop()
		c.started = false
	}

	c.clock.Reset()
	c.store.Reset()
	c.members = node.NewMembership(nil)
	c.detector = failure.New()
}

// Running reports whether the gossip loop is currently active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Engine returns the current gossip engine, or nil if the node has
// never been started.
func (c *Controller) Engine() *gossip.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Members returns the node's current membership view.
func (c *Controller) Members() *node.Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members
}

// Store returns the node's state store, for HTTP handlers serving
// /metadata and /get_recent_data_from_node. The store's own lock
// guards concurrent access; its identity never changes after
// construction.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Self returns this node's own peer key.
func (c *Controller) Self() model.PeerKey {
	return c.self
}

// Close releases the controller's resources (the telemetry buffer's
// database handle), for process shutdown.
func (c *Controller) Close() error {
	return c.buffer.Close()
}

func peerMap(in map[model.PeerKey]model.Peer) map[model.PeerKey]*model.Peer {
	out := make(map[model.PeerKey]*model.Peer, len(in))
	for k, v := range in {
		v := v
		out[k] = &v
	}
	return out
}
