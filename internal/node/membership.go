// Package node holds the cluster membership view: node_list, the
// mapping peer_key -> {ip, port, is_alive} mutated only by the
// owning node's failure detector and by /start_node-time
// initialization. It is kept as a map keyed by peer_key rather than
// a parallel list+dict, since every lookup and mutation is by key.
package node

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// Membership is the node_list: the set of peers this node currently
// believes are part of the cluster.
type Membership struct {
	mu    sync.RWMutex
	peers map[model.PeerKey]*model.Peer
}

// NewMembership creates a Membership seeded with the given initial
// peer list, as supplied by /start_node: the peer list is injected at
// start-up and never grows through dynamic discovery.
func NewMembership(initial map[model.PeerKey]*model.Peer) *Membership {
	m := &Membership{peers: make(map[model.PeerKey]*model.Peer)}
	for k, v := range initial {
		cp := *v
		m.peers[k] = &cp
	}
	return m
}

// Add inserts or overwrites a peer entry.
func (m *Membership) Add(key model.PeerKey, peer model.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[key] = &peer
}

// Remove evicts a peer from the membership view: a peer with three or
// more consecutive exchange failures is absent from node_list.
func (m *Membership) Remove(key model.PeerKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, key)
}

// Get returns a copy of a peer's entry.
func (m *Membership) Get(key model.PeerKey) (model.Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[key]
	if !ok {
		return model.Peer{}, false
	}
	return *p, true
}

// All returns a copy of every peer currently in the membership view.
func (m *Membership) All() map[model.PeerKey]model.Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[model.PeerKey]model.Peer, len(m.peers))
	for k, v := range m.peers {
		out[k] = *v
	}
	return out
}

// Sample draws up to n distinct peer keys without replacement from
// the membership view, excluding self. Peer selection uses a CSPRNG
// (crypto/rand) rather than a wall-clock-seeded PRNG, so that two
// nodes restarting at the same instant don't draw correlated samples.
func (m *Membership) Sample(self model.PeerKey, n int) ([]model.PeerKey, error) {
	m.mu.RLock()
	candidates := make([]model.PeerKey, 0, len(m.peers))
	for k := range m.peers {
		if k != self {
			candidates = append(candidates, k)
		}
	}
	m.mu.RUnlock()

	if n > len(candidates) {
		n = len(candidates)
	}

	selected := make([]model.PeerKey, 0, n)
	for i := 0; i < n; i++ {
		idxBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates)-i)))
		if err != nil {
			return nil, fmt.Errorf("node: sampling peers: %w", err)
		}
		idx := int(idxBig.Int64()) + i
		candidates[i], candidates[idx] = candidates[idx], candidates[i]
		selected = append(selected, candidates[i])
	}
	return selected, nil
}

// Count returns the number of peers currently in the membership view.
func (m *Membership) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}
