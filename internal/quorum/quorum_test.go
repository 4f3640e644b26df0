package quorum

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/store"
)

func addrOf(t *testing.T, rawURL string) (string, int) {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// newMockPeer serves /metadata and /get_recent_data_from_node using
// whatever RecordMeta/model.Record the supplied funcs currently
// return, so a test can simulate a peer catching up mid-read.
func newMockPeer(t *testing.T, selfKey model.PeerKey, meta func() store.RecordMeta, rec func() model.Record) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[model.PeerKey]store.RecordMeta{selfKey: meta()})
	})
	mux.HandleFunc("/get_recent_data_from_node", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[model.PeerKey]model.Record{selfKey: rec()})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// Scenario 4, converged case: with Q=3 over peers that already agree,
// the read returns the target's latest record on the first attempt.
func TestRead_SucceedsOnFirstAttemptWhenConverged(t *testing.T) {
	targetKey := model.PeerKey("c:0")
	converged := store.RecordMeta{Counter: 5, Digest: "abc"}
	record := model.Record{Counter: 5, Digest: "abc"}

	srvA := newMockPeer(t, targetKey, func() store.RecordMeta { return converged }, func() model.Record { return record })
	srvB := newMockPeer(t, targetKey, func() store.RecordMeta { return converged }, func() model.Record { return record })
	srvC := newMockPeer(t, targetKey, func() store.RecordMeta { return converged }, func() model.Record { return record })

	members := node.NewMembership(nil)
	for _, srv := range []*httptest.Server{srvA, srvB, srvC} {
		ip, port := addrOf(t, srv.URL)
		members.Add(model.PeerKey(net.JoinHostPort(ip, strconv.Itoa(port))), model.Peer{IP: ip, Port: port, IsAlive: true})
	}

	client := NewClient(members, "me:0", time.Second, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.Read(ctx, targetKey, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Record.Counter)
	assert.Equal(t, 4, result.MessagesSent, "3 metadata fetches plus 1 record fetch, all in the first round")
}

// Scenario 4, straggler case: one peer reports a stale counter on its
// first answer; the quorum read retries until all three agree.
func TestRead_RetriesUntilStragglerCatchesUp(t *testing.T) {
	targetKey := model.PeerKey("c:0")
	fresh := store.RecordMeta{Counter: 5, Digest: "abc"}
	freshRecord := model.Record{Counter: 5, Digest: "abc"}

	var stragglerCalls int32

	srvA := newMockPeer(t, targetKey, func() store.RecordMeta { return fresh }, func() model.Record { return freshRecord })
	srvB := newMockPeer(t, targetKey, func() store.RecordMeta { return fresh }, func() model.Record { return freshRecord })
	srvStraggler := newMockPeer(t, targetKey, func() store.RecordMeta {
		if atomic.AddInt32(&stragglerCalls, 1) == 1 {
			return store.RecordMeta{Counter: 3, Digest: "old"}
		}
		return fresh
	}, func() model.Record { return freshRecord })

	members := node.NewMembership(nil)
	for _, srv := range []*httptest.Server{srvA, srvB, srvStraggler} {
		ip, port := addrOf(t, srv.URL)
		members.Add(model.PeerKey(net.JoinHostPort(ip, strconv.Itoa(port))), model.Peer{IP: ip, Port: port, IsAlive: true})
	}

	client := NewClient(members, "me:0", time.Second, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Read(ctx, targetKey, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Record.Counter)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&stragglerCalls), int32(2), "the straggler must be re-polled at least once before convergence")
}

func TestAllAgree_DetectsCounterOrDigestMismatch(t *testing.T) {
	agreeing := map[model.PeerKey]store.RecordMeta{
		"a:0": {Counter: 1, Digest: "x"},
		"b:0": {Counter: 1, Digest: "x"},
	}
	assert.True(t, allAgree(agreeing))

	disagreeing := map[model.PeerKey]store.RecordMeta{
		"a:0": {Counter: 1, Digest: "x"},
		"b:0": {Counter: 2, Digest: "x"},
	}
	assert.False(t, allAgree(disagreeing))
}
