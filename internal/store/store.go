// Package store implements the per-round state store: an ordered
// mapping time_key -> { peer_key -> Record } with carry-forward
// semantics and per-cycle ingest bookkeeping.
package store

import (
	"fmt"
	"sync"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// FlowCounts is the "fd, nd" pair attached to each cycle: how many
// updates ingested that round were refreshes of a peer_key the store
// already knew ("fresh data") versus a peer_key it had never seen
// before ("new data").
type FlowCounts struct {
	Fresh int
	New   int
}

// Store is the only significantly shared mutable resource in the
// system: a single RWMutex guards every snapshot, so reads and writes
// of one snapshot are linearizable.
type Store struct {
	mu        sync.RWMutex
	self      model.PeerKey
	snapshots map[int64]map[model.PeerKey]model.Record
	maxKey    int64
	hasAny    bool
	dataFlow  map[int64]FlowCounts
}

// New creates an empty store for the given self peer key.
func New(self model.PeerKey) *Store {
	return &Store{
		self:      self,
		snapshots: make(map[int64]map[model.PeerKey]model.Record),
		dataFlow:  make(map[int64]FlowCounts),
	}
}

// OpenNewTimeKey creates snapshot[k] as a shallow copy of the current
// latest snapshot (carry-forward), or empty if this is the first key.
// It fails if k is not strictly greater than every existing time_key:
// a time_key is created exactly once per local gossip cycle and its
// value is the current counter reading.
func (s *Store) OpenNewTimeKey(k int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasAny && k <= s.maxKey {
		return fmt.Errorf("store: time_key %d is not strictly greater than existing max %d", k, s.maxKey)
	}

	next := make(map[model.PeerKey]model.Record)
	if s.hasAny {
		for peer, rec := range s.snapshots[s.maxKey] {
			next[peer] = rec.Clone()
		}
	}
	s.snapshots[k] = next
	s.maxKey = k
	s.hasAny = true
	return nil
}

// PutSelf overwrites snapshot[k][self] with the freshly sampled local
// record. Only the authoring node calls this for its own peer key
// (invariant 4).
func (s *Store) PutSelf(k int64, record model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[k]
	if !ok {
		return fmt.Errorf("store: unknown time_key %d", k)
	}
	snap[s.self] = record
	return nil
}

// Metadata returns {peer_key: counter} for every entry in snapshot[k]
// except self, for use in the peer-exchange protocol's first message.
func (s *Store) Metadata(k int64) map[model.PeerKey]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.PeerKey]int64)
	for peer, rec := range s.snapshots[k] {
		if peer == s.self {
			continue
		}
		out[peer] = rec.Counter
	}
	return out
}

// RecordMeta is a peer's {counter, digest} pair, the granularity the
// quorum-read protocol compares across sampled peers without
// transferring full records.
type RecordMeta struct {
	Counter int64  `json:"counter"`
	Digest  string `json:"digest"`
}

// FullMetadata returns {peer_key: {counter, digest}} for every entry
// in snapshot[k], including self, for the /metadata endpoint the
// quorum-read protocol polls.
func (s *Store) FullMetadata(k int64) map[model.PeerKey]RecordMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.PeerKey]RecordMeta)
	for peer, rec := range s.snapshots[k] {
		out[peer] = RecordMeta{Counter: rec.Counter, Digest: rec.Digest}
	}
	return out
}

// Subset returns {key: record} for the requested keys that exist in
// snapshot[k].
func (s *Store) Subset(k int64, keys []model.PeerKey) map[model.PeerKey]model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.PeerKey]model.Record)
	snap := s.snapshots[k]
	for _, key := range keys {
		if rec, ok := snap[key]; ok {
			out[key] = rec
		}
	}
	return out
}

// Ingest merges {peer_key: record} into snapshot[k], classifying each
// update as fresh (peer_key already present) or new (peer_key absent)
// and accumulating the per-cycle (fd, nd) counters.
func (s *Store) Ingest(k int64, cycle int64, updates map[model.PeerKey]model.Record) FlowCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[k]
	if !ok {
		snap = make(map[model.PeerKey]model.Record)
		s.snapshots[k] = snap
		if !s.hasAny || k > s.maxKey {
			s.maxKey = k
			s.hasAny = true
		}
	}

	var counts FlowCounts
	for peer, rec := range updates {
		if peer == s.self {
			// Never let a peer forge our own counter (invariant 4).
			continue
		}
		if _, existed := snap[peer]; existed {
			counts.Fresh++
		} else {
			counts.New++
		}
		snap[peer] = rec
	}

	agg := s.dataFlow[cycle]
	agg.Fresh += counts.Fresh
	agg.New += counts.New
	s.dataFlow[cycle] = agg

	return counts
}

// DataFlow returns the (fd, nd) aggregate recorded for a given cycle.
// A cycle that contacted zero peers reports fd=0, nd=0.
func (s *Store) DataFlow(cycle int64) FlowCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataFlow[cycle]
}

// Latest returns the highest time_key and its snapshot.
func (s *Store) Latest() (int64, map[model.PeerKey]model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasAny {
		return 0, nil, false
	}
	out := make(map[model.PeerKey]model.Record, len(s.snapshots[s.maxKey]))
	for k, v := range s.snapshots[s.maxKey] {
		out[k] = v
	}
	return s.maxKey, out, true
}

// CurrentKey returns the highest time_key currently open, without the
// copy overhead of Latest. HTTP handlers key into the store by this
// value rather than the engine's own per-tick cycle counter, which
// only coincides with the time_key when gossip_rate is exactly one
// second: the clock advances at 1Hz regardless of gossip_rate.
func (s *Store) CurrentKey() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxKey, s.hasAny
}

// UpdateHBState applies fn to peer's HBState in snapshot[k] and writes
// the mutated record back. It is a no-op if the snapshot or the
// peer's record doesn't exist, mirroring MarkDead.
func (s *Store) UpdateHBState(k int64, peer model.PeerKey, fn func(*model.HBState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[k]
	if !ok {
		return
	}
	rec, ok := snap[peer]
	if !ok {
		return
	}
	fn(&rec.HBState)
	snap[peer] = rec
}

// PruneAllButLatest retains only the maximum time_key's snapshot,
// implementing the push-mode flush's "keep exactly one snapshot"
// contract.
func (s *Store) PruneAllButLatest() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasAny {
		return
	}
	latest := s.snapshots[s.maxKey]
	s.snapshots = map[int64]map[model.PeerKey]model.Record{s.maxKey: latest}
}

// AllButLatest returns every snapshot except the current latest,
// keyed by time_key (a map, so in no particular order), for the
// push-mode flush to ship out before pruning them.
func (s *Store) AllButLatest() map[int64]map[model.PeerKey]model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]map[model.PeerKey]model.Record)
	for k, snap := range s.snapshots {
		if k == s.maxKey {
			continue
		}
		out[k] = snap
	}
	return out
}

// MarkDead flags peer's record in snapshot[k] as no longer alive,
// once the failure detector has evicted it. It is a no-op if the
// snapshot or the peer's record doesn't exist.
func (s *Store) MarkDead(k int64, peer model.PeerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[k]
	if !ok {
		return
	}
	rec, ok := snap[peer]
	if !ok {
		return
	}
	rec.HBState.NodeAlive = false
	snap[peer] = rec
}

// Reset clears the store back to empty, for /reset_node.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[int64]map[model.PeerKey]model.Record)
	s.dataFlow = make(map[int64]FlowCounts)
	s.maxKey = 0
	s.hasAny = false
}

// SnapshotCount reports how many time_keys are currently retained,
// used by tests asserting the push-flush invariant.
func (s *Store) SnapshotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
