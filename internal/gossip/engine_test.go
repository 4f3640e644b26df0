package gossip

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/clock"
	"github.com/aryanbagade/gossip-fabric/internal/failure"
	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/sampler"
	"github.com/aryanbagade/gossip-fabric/internal/store"
	"github.com/aryanbagade/gossip-fabric/internal/voi"
)

// A node with no peers still advances its cycle, and the flow
// counters for that cycle stay at zero.
func TestEngine_ZeroPeersStillAdvancesCycle(t *testing.T) {
	st := store.New("solo:0")
	members := node.NewMembership(nil)
	log := zap.NewNop().Sugar()

	cfg := Config{
		Self: "solo:0", SelfIP: "solo", SelfPort: 0,
		TargetCount: 2, GossipRate: time.Second, ExchangeTimeout: time.Second,
	}
	eng := NewEngine(cfg, clock.New(), st, members, failure.New(),
		sampler.New("/", log), voi.New(voi.DefaultConfig()), NewClient(time.Second), nil, nil, log)

	eng.runCycle(context.Background())

	assert.Equal(t, int64(1), eng.Cycle())

	_, snap, ok := st.Latest()
	require.True(t, ok)
	assert.Contains(t, snap, model.PeerKey("solo:0"))
	assert.Equal(t, store.FlowCounts{}, st.DataFlow(1))
}

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// Scenario 3: take B offline. A issues three exchanges to B, each
// failing; after the third, A's node_list no longer contains B and
// A's snapshot entry for B is marked dead.
func TestEngine_FailureDetectionEvictsAfterThreeFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-clock failure-detection scenario in short mode")
	}

	bSrv := httptest.NewServer(http.NotFoundHandler())
	bHost, bPort := splitHostPort(t, bSrv.URL)
	bKey := model.PeerKey(net.JoinHostPort(bHost, strconv.Itoa(bPort)))
	bSrv.Close() // B is offline: every exchange against it now fails to dial.

	st := store.New("a:0")
	require.NoError(t, st.OpenNewTimeKey(0))
	st.Ingest(0, 0, map[model.PeerKey]model.Record{
		bKey: {Counter: 1, HBState: model.HBState{NodeAlive: true}},
	})

	members := node.NewMembership(map[model.PeerKey]*model.Peer{
		bKey: {IP: bHost, Port: bPort, IsAlive: true},
	})
	log := zap.NewNop().Sugar()

	cfg := Config{
		Self: "a:0", SelfIP: "a", SelfPort: 0,
		TargetCount: 1, GossipRate: time.Second, ExchangeTimeout: time.Second,
	}
	eng := NewEngine(cfg, clock.New(), st, members, failure.New(),
		sampler.New("/", log), voi.New(voi.DefaultConfig()), NewClient(time.Second), nil, nil, log)

	eng.clock.Start()
	t.Cleanup(eng.clock.Stop)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		time.Sleep(1100 * time.Millisecond)
		eng.runCycle(ctx)
	}

	_, stillMember := members.Get(bKey)
	assert.False(t, stillMember, "B must be evicted from node_list after 3 failures")

	lastK, snap, ok := st.Latest()
	require.True(t, ok)
	rec, ok := snap[bKey]
	require.True(t, ok, "B's record must survive eviction in snapshot %d, only marked dead", lastK)
	assert.False(t, rec.HBState.NodeAlive)
	assert.Equal(t, 3, rec.HBState.FailureCount, "gossiped HBState must mirror the detector's failure count")
	assert.Len(t, rec.HBState.FailureList, 3, "gossiped HBState must record one entry per failed exchange")
}

// Scenario 1: three nodes, target_count=2, each starting with only
// itself in its store; after a handful of real gossip cycles every
// node's latest snapshot has learned about the other two.
func TestEngine_BootstrapConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-second convergence scenario in short mode")
	}

	type harness struct {
		key     model.PeerKey
		store   *store.Store
		members *node.Membership
		engine  *Engine
		srv     *httptest.Server
	}

	newHarness := func() *harness {
		h := &harness{members: node.NewMembership(nil)}

		mux := http.NewServeMux()
		mux.HandleFunc("/receive_metadata", func(w http.ResponseWriter, r *http.Request) {
			var req ExchangeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			k, _, ok := h.store.Latest()
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			resp := NewResponder(h.store, h.key).Respond(k, 0, req)
			_ = json.NewEncoder(w).Encode(resp)
		})
		mux.HandleFunc("/receive_message", func(w http.ResponseWriter, r *http.Request) {
			var updates map[model.PeerKey]model.Record
			if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			k, _, ok := h.store.Latest()
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			h.store.Ingest(k, 0, updates)
			w.WriteHeader(http.StatusOK)
		})

		h.srv = httptest.NewServer(mux)
		t.Cleanup(h.srv.Close)
		return h
	}

	a, b, c := newHarness(), newHarness(), newHarness()
	nodes := []*harness{a, b, c}

	for _, h := range nodes {
		ip, port := splitHostPort(t, h.srv.URL)
		h.key = model.PeerKey(net.JoinHostPort(ip, strconv.Itoa(port)))
		h.store = store.New(h.key)
	}

	for i, h := range nodes {
		for j, other := range nodes {
			if i == j {
				continue
			}
			ip, port := splitHostPort(t, other.srv.URL)
			h.members.Add(other.key, model.Peer{IP: ip, Port: port, IsAlive: true})
		}
	}

	log := zap.NewNop().Sugar()
	for _, h := range nodes {
		ip, port := splitHostPort(t, h.srv.URL)
		cfg := Config{
			Self: h.key, SelfIP: ip, SelfPort: port,
			TargetCount: 2, GossipRate: time.Second, ExchangeTimeout: 2 * time.Second,
		}
		h.engine = NewEngine(cfg, clock.New(), h.store, h.members, failure.New(),
			sampler.New("/", log), voi.New(voi.DefaultConfig()), NewClient(2*time.Second), nil, nil, log)
	}

	ctx := context.Background()
	for _, h := range nodes {
		h.engine.Start(ctx)
	}
	t.Cleanup(func() {
		for _, h := range nodes {
			h.engine.Stop()
		}
	})

	require.Eventually(t, func() bool {
		for _, h := range nodes {
			_, snap, ok := h.store.Latest()
			if !ok || len(snap) < 3 {
				return false
			}
		}
		return true
	}, 8*time.Second, 150*time.Millisecond, "all three nodes should learn about each other within a few gossip cycles")
}
