package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/store"
)

// ExchangeRequest is the wire shape of the first peer-exchange
// message: initiator I's view of the cluster plus I's freshest,
// VOI-filtered self-record.
type ExchangeRequest struct {
	Metadata   map[model.PeerKey]int64 `json:"metadata"`
	SelfKey    model.PeerKey           `json:"self_key"`
	SelfRecord model.Record            `json:"self_record"`
}

// ExchangeResponse is responder R's reply to an ExchangeRequest.
type ExchangeResponse struct {
	RequestedKeys []model.PeerKey                `json:"requested_keys"`
	Updates       map[model.PeerKey]model.Record `json:"updates"`
}

// Client is the outbound half of the peer-exchange protocol: the two
// HTTP calls the gossip engine makes as initiator I, against the
// receive_metadata/receive_message contract rather than a single
// fire-and-forget heartbeat POST.
type Client struct {
	http *http.Client
}

// NewClient builds a Client whose calls are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Exchange sends the metadata_and_own_fresh message to peer and
// returns its requested_keys/updates reply. A non-2xx status or any
// transport error is reported to the caller, which treats it as a
// peer-exchange failure for the failure detector to record.
func (c *Client) Exchange(ctx context.Context, peer model.Peer, req ExchangeRequest) (ExchangeResponse, error) {
	var out ExchangeResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, errors.Wrap(err, "gossip: marshal exchange request")
	}

	url := fmt.Sprintf("http://%s:%d/receive_metadata", peer.IP, peer.Port)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, errors.Wrap(err, "gossip: build exchange request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return out, errors.Wrapf(err, "gossip: exchange request to %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, errors.Errorf("gossip: exchange with %s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Wrapf(err, "gossip: decode exchange response from %s", url)
	}
	return out, nil
}

// Push delivers the third peer-exchange message: I sends R the
// records R requested, tagged with I's current cycle. The
// receive_message endpoint is a GET carrying a JSON body; a non-2xx
// response is reported back to the caller as a push failure.
func (c *Client) Push(ctx context.Context, peer model.Peer, cycle int64, updates map[model.PeerKey]model.Record) error {
	body, err := json.Marshal(updates)
	if err != nil {
		return errors.Wrap(err, "gossip: marshal push payload")
	}

	url := fmt.Sprintf("http://%s:%d/receive_message?inc_round=%d", peer.IP, peer.Port, cycle)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "gossip: build push request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "gossip: push request to %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("gossip: push to %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// Responder implements responder R's side of the protocol: given
// initiator I's metadata and self-record, it ingests
// I's self-record, then decides what R still wants from I and what R
// can offer back. It is called from the /receive_metadata HTTP
// handler, which owns picking k and cycle.
type Responder struct {
	store *store.Store
	self  model.PeerKey
}

// NewResponder builds a Responder over st for the given self peer key.
func NewResponder(st *store.Store, self model.PeerKey) *Responder {
	return &Responder{store: st, self: self}
}

// Respond ingests req.SelfRecord under req.SelfKey, then computes
// requested_keys (every key in I's metadata whose counter exceeds R's
// local counter, or that R does not have) and updates (every record R
// holds that is fresher than I's metadata claims). Equal counters are
// a tie: neither requested nor offered.
func (r *Responder) Respond(k, cycle int64, req ExchangeRequest) ExchangeResponse {
	if req.SelfKey != "" {
		r.store.Ingest(k, cycle, map[model.PeerKey]model.Record{req.SelfKey: req.SelfRecord})
	}

	localMeta := r.store.Metadata(k)

	var requested []model.PeerKey
	for peer, theirCounter := range req.Metadata {
		if peer == r.self {
			continue
		}
		localCounter, have := localMeta[peer]
		if !have || theirCounter > localCounter {
			requested = append(requested, peer)
		}
	}

	updates := make(map[model.PeerKey]model.Record)
	for peer, localCounter := range localMeta {
		theirCounter, theyHave := req.Metadata[peer]
		if !theyHave || localCounter > theirCounter {
			if rec, ok := r.store.Subset(k, []model.PeerKey{peer})[peer]; ok {
				updates[peer] = rec
			}
		}
	}

	return ExchangeResponse{RequestedKeys: requested, Updates: updates}
}
