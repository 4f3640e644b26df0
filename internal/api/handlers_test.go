package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/control"
	"github.com/aryanbagade/gossip-fabric/internal/gossip"
	"github.com/aryanbagade/gossip-fabric/internal/model"
)

func newTestRouter(t *testing.T) (*httptest.Server, *control.Controller) {
	ctrl, err := control.NewController("a:5000", t.TempDir(), t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	router := NewRouter(ctrl, NewMetrics(), zap.NewNop().Sugar())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func TestHelloWorld_ReturnsGreeting(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/hello_world")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartStopReset_LifecycleRoundTrip(t *testing.T) {
	srv, ctrl := newTestRouter(t)

	body, _ := json.Marshal(control.StartRequest{
		NodeList:    map[model.PeerKey]model.Peer{"b:5000": {IP: "b", Port: 5000, IsAlive: true}},
		TargetCount: 1,
		GossipRate:  1,
		NodeIP:      "a",
		ClientPort:  5000,
	})
	resp, err := http.Post(srv.URL+"/start_node", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ctrl.Running())

	resp, err = http.Get(srv.URL + "/stop_node")
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, ctrl.Running())

	resp, err = http.Get(srv.URL + "/reset_node")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 0, ctrl.Store().SnapshotCount())
}

func TestReceiveMetadata_BeforeStart_ReturnsNotFound(t *testing.T) {
	srv, _ := newTestRouter(t)

	body, _ := json.Marshal(gossip.ExchangeRequest{SelfKey: "b:5000"})
	resp, err := http.Post(srv.URL+"/receive_metadata", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReceiveMetadata_MalformedBody_ReturnsBadRequestWithAdvice(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/receive_metadata", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Message)
	assert.NotEmpty(t, body.Advice)
}

// The clock advances at 1Hz regardless of gossip_rate, so the store's
// time_key outpaces the engine's own per-tick cycle count whenever
// gossip_rate != 1s. /metadata must serve the live time_key, not a
// snapshot keyed by the stale cycle count.
func TestMetadata_ReflectsLiveTimeKey_NotCycleCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-clock gossip_rate divergence scenario in short mode")
	}
	srv, ctrl := newTestRouter(t)

	body, _ := json.Marshal(control.StartRequest{
		TargetCount: 1,
		GossipRate:  2,
		NodeIP:      "a",
		ClientPort:  5000,
	})
	resp, err := http.Post(srv.URL+"/start_node", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		_, ok := ctrl.Store().CurrentKey()
		return ok
	}, 5*time.Second, 100*time.Millisecond, "the first gossip cycle should open a time_key")

	k, _ := ctrl.Store().CurrentKey()
	assert.Greater(t, k, ctrl.Engine().Cycle(), "time_key must outpace the cycle count once gossip_rate exceeds 1s")

	resp, err = http.Get(srv.URL + "/metadata")
	require.NoError(t, err)
	defer resp.Body.Close()

	var meta map[model.PeerKey]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Contains(t, meta, model.PeerKey("a:5000"), "metadata must be served from the live time_key, not a stale cycle-keyed snapshot")
}

func TestMetadataAndGetRecentData_EmptyStore_ReturnEmptyObject(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/metadata")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var meta map[model.PeerKey]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Empty(t, meta)

	recentResp, err := http.Get(srv.URL + "/get_recent_data_from_node")
	require.NoError(t, err)
	defer recentResp.Body.Close()
	assert.Equal(t, http.StatusOK, recentResp.StatusCode)

	var recent map[model.PeerKey]model.Record
	require.NoError(t, json.NewDecoder(recentResp.Body).Decode(&recent))
	assert.Empty(t, recent)
}
