package gossip

import (
	"testing"

	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespond_IngestsInitiatorSelfRecord(t *testing.T) {
	st := store.New("r:5000")
	require.NoError(t, st.OpenNewTimeKey(1))
	responder := NewResponder(st, "r:5000")

	resp := responder.Respond(1, 1, ExchangeRequest{
		SelfKey:    "i:5000",
		SelfRecord: model.Record{Counter: 4},
	})

	subset := st.Subset(1, []model.PeerKey{"i:5000"})
	assert.Equal(t, int64(4), subset["i:5000"].Counter)
	assert.Empty(t, resp.RequestedKeys)
}

func TestRespond_RequestsKeysWhereInitiatorIsFresher(t *testing.T) {
	st := store.New("r:5000")
	require.NoError(t, st.OpenNewTimeKey(1))

	responder := NewResponder(st, "r:5000")
	resp := responder.Respond(1, 1, ExchangeRequest{
		Metadata: map[model.PeerKey]int64{"c:5000": 9},
		SelfKey:  "i:5000",
		SelfRecord: model.Record{Counter: 1},
	})

	assert.Contains(t, resp.RequestedKeys, model.PeerKey("c:5000"))
}

func TestRespond_OffersRecordsWhereResponderIsFresher(t *testing.T) {
	st := store.New("r:5000")
	require.NoError(t, st.OpenNewTimeKey(1))
	st.Ingest(1, 1, map[model.PeerKey]model.Record{"c:5000": {Counter: 9}})

	responder := NewResponder(st, "r:5000")
	resp := responder.Respond(1, 1, ExchangeRequest{
		Metadata: map[model.PeerKey]int64{"c:5000": 2},
		SelfKey:  "i:5000",
	})

	rec, ok := resp.Updates["c:5000"]
	require.True(t, ok)
	assert.Equal(t, int64(9), rec.Counter)
}

// Equal counters are a tie: no transfer in either direction.
func TestRespond_EqualCountersAreATieNoTransfer(t *testing.T) {
	st := store.New("r:5000")
	require.NoError(t, st.OpenNewTimeKey(1))
	st.Ingest(1, 1, map[model.PeerKey]model.Record{"c:5000": {Counter: 5}})

	responder := NewResponder(st, "r:5000")
	resp := responder.Respond(1, 1, ExchangeRequest{
		Metadata: map[model.PeerKey]int64{"c:5000": 5},
		SelfKey:  "i:5000",
	})

	assert.NotContains(t, resp.RequestedKeys, model.PeerKey("c:5000"))
	assert.NotContains(t, resp.Updates, model.PeerKey("c:5000"))
}
