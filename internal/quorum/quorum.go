// Package quorum implements the external client-facing quorum-read
// protocol: sample Q nodes, require their metadata to agree on both
// counter and digest, then fetch the record from any one of them.
// Read quorum here is about cross-peer convergence rather than
// local-storage availability, so a read retries on disagreement
// instead of failing outright on a short sample.
package quorum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/store"
)

// Result is the outcome of a completed quorum read: the agreed record
// plus the total number of outbound messages the read took.
type Result struct {
	Record       model.Record
	MessagesSent int
}

// Hooks receives ambient process counters as a read progresses. A nil
// Hooks is a no-op.
type Hooks interface {
	QuorumAttempt()
	QuorumRetry()
}

// Client drives quorum reads against a node's own membership view.
type Client struct {
	http    *http.Client
	members *node.Membership
	self    model.PeerKey
	log     *zap.SugaredLogger
	hooks   Hooks
}

// SetHooks attaches an ambient metrics collaborator. Optional.
func (c *Client) SetHooks(h Hooks) {
	c.hooks = h
}

// NewClient builds a quorum Client sampling from members, excluding
// self, with each outbound call bounded by timeout.
func NewClient(members *node.Membership, self model.PeerKey, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		members: members,
		self:    self,
		log:     log,
	}
}

// Read repeatedly samples quorumSize nodes, compares their reported
// {counter, digest} for targetKey, and on full agreement fetches the
// record from any one of them. It retries until ctx is cancelled.
func (c *Client) Read(ctx context.Context, targetKey model.PeerKey, quorumSize int) (Result, error) {
	var messages int

	for {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("quorum: read for %s cancelled after %d messages: %w", targetKey, messages, ctx.Err())
		default:
		}

		if c.hooks != nil {
			c.hooks.QuorumAttempt()
		}

		sample, err := c.members.Sample(c.self, quorumSize)
		if err != nil {
			return Result{}, fmt.Errorf("quorum: sampling peers: %w", err)
		}
		if len(sample) < quorumSize {
			c.log.Debugw("quorum: fewer live members than quorum size, retrying", "have", len(sample), "need", quorumSize)
			c.retry()
			continue
		}

		agreement := make(map[model.PeerKey]store.RecordMeta, len(sample))
		sampleOK := true
		for _, peer := range sample {
			addr, found := c.members.Get(peer)
			if !found {
				sampleOK = false
				break
			}
			entry, err := c.fetchMetadata(ctx, addr, targetKey)
			messages++
			if err != nil {
				c.log.Debugw("quorum: metadata fetch failed, retrying round", "peer", peer, "error", err)
				sampleOK = false
				break
			}
			agreement[peer] = entry
		}
		if !sampleOK || len(agreement) < quorumSize {
			c.retry()
			continue
		}
		if !allAgree(agreement) {
			c.log.Debugw("quorum: sampled peers disagree on target, retrying", "target", targetKey)
			c.retry()
			continue
		}

		winner := sample[0]
		addr, _ := c.members.Get(winner)
		rec, err := c.fetchRecord(ctx, addr, targetKey)
		messages++
		if err != nil {
			c.log.Debugw("quorum: record fetch from agreeing peer failed, retrying", "peer", winner, "error", err)
			c.retry()
			continue
		}
		return Result{Record: rec, MessagesSent: messages}, nil
	}
}

func (c *Client) retry() {
	if c.hooks != nil {
		c.hooks.QuorumRetry()
	}
}

// allAgree reports whether every entry shares the same counter and
// digest: the proof-of-convergence condition a quorum read requires
// before it will trust any one peer's record.
func allAgree(entries map[model.PeerKey]store.RecordMeta) bool {
	var first store.RecordMeta
	seen := false
	for _, e := range entries {
		if !seen {
			first = e
			seen = true
			continue
		}
		if e.Counter != first.Counter || e.Digest != first.Digest {
			return false
		}
	}
	return true
}

func (c *Client) fetchMetadata(ctx context.Context, peer model.Peer, targetKey model.PeerKey) (store.RecordMeta, error) {
	url := fmt.Sprintf("http://%s:%d/metadata", peer.IP, peer.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return store.RecordMeta{}, fmt.Errorf("quorum: build metadata request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return store.RecordMeta{}, fmt.Errorf("quorum: metadata request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return store.RecordMeta{}, fmt.Errorf("quorum: metadata request to %s returned status %d", url, resp.StatusCode)
	}

	var meta map[model.PeerKey]store.RecordMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return store.RecordMeta{}, fmt.Errorf("quorum: decode metadata from %s: %w", url, err)
	}

	entry, ok := meta[targetKey]
	if !ok {
		return store.RecordMeta{}, fmt.Errorf("quorum: %s has no metadata for %s", url, targetKey)
	}
	return entry, nil
}

func (c *Client) fetchRecord(ctx context.Context, peer model.Peer, targetKey model.PeerKey) (model.Record, error) {
	url := fmt.Sprintf("http://%s:%d/get_recent_data_from_node", peer.IP, peer.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Record{}, fmt.Errorf("quorum: build record request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Record{}, fmt.Errorf("quorum: record request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Record{}, fmt.Errorf("quorum: record request to %s returned status %d", url, resp.StatusCode)
	}

	var snap map[model.PeerKey]model.Record
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return model.Record{}, fmt.Errorf("quorum: decode snapshot from %s: %w", url, err)
	}

	rec, ok := snap[targetKey]
	if !ok {
		return model.Record{}, fmt.Errorf("quorum: %s has no record for %s", url, targetKey)
	}
	return rec, nil
}
