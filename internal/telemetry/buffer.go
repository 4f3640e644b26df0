// Package telemetry stages per-round VOI metrics locally and posts
// retired gossip snapshots to the external analytics sink. The staging
// buffer is an embedded LevelDB keyed by round number, repurposed from
// an arbitrary key-value Put/Get store into append-only rows mirroring
// the round_metrics_stats/metric_transmissions analytics schema. The
// node never sends the buffer's rows to the sink; they stay on local
// disk until `gossipd telemetry dump --clear` drains them.
package telemetry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/voi"
)

// RoundStat mirrors one round_metrics_stats row.
type RoundStat struct {
	NodeIP          string `json:"node_ip"`
	Round           int64  `json:"round"`
	MetricsSent     int    `json:"metrics_sent"`
	MetricsFiltered int    `json:"metrics_filtered"`
}

// Transmission mirrors one metric_transmissions row.
type Transmission struct {
	NodeIP     string `json:"node_ip"`
	Round      int64  `json:"round"`
	MetricType string `json:"metric_type"`
	WasSent    bool   `json:"was_sent"`
}

// round is the staged unit: one cycle's stat plus its per-field
// transmission events.
type round struct {
	Stat          RoundStat      `json:"stat"`
	Transmissions []Transmission `json:"transmissions"`
}

// Buffer stages rounds in an embedded LevelDB until Clear removes
// them. The push-mode snapshot flush does not touch it.
type Buffer struct {
	db     *leveldb.DB
	nodeIP string
	mu     sync.Mutex
	log    *zap.SugaredLogger
}

// Open creates or reopens a Buffer backed by dataDir/nodeIP.
func Open(dataDir, nodeIP string, log *zap.SugaredLogger) (*Buffer, error) {
	path := filepath.Join(dataDir, nodeIP)

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		if errors.IsCorrupted(err) {
			log.Warnw("telemetry: buffer corrupted, recovering", "path", path, "error", err)
			db, err = leveldb.RecoverFile(path, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("telemetry: open buffer at %s: %w", path, err)
		}
	}

	return &Buffer{db: db, nodeIP: nodeIP, log: log}, nil
}

// RecordRound stages one gossip cycle's VOI summary and events. It is
// independent of whether a flush is due this cycle.
func (b *Buffer) RecordRound(summary voi.RoundSummary, events []voi.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := round{
		Stat: RoundStat{
			NodeIP:          b.nodeIP,
			Round:           summary.Round,
			MetricsSent:     summary.SentCount,
			MetricsFiltered: summary.FilteredCount,
		},
	}
	for _, e := range events {
		r.Transmissions = append(r.Transmissions, Transmission{
			NodeIP:     b.nodeIP,
			Round:      e.Round,
			MetricType: e.Field,
			WasSent:    e.WasSent,
		})
	}

	data, err := json.Marshal(r)
	if err != nil {
		b.log.Errorw("telemetry: failed to marshal round, dropping", "round", summary.Round, "error", err)
		return
	}

	if err := b.db.Put(roundKey(summary.Round), data, nil); err != nil {
		b.log.Errorw("telemetry: failed to stage round", "round", summary.Round, "error", err)
	}
}

// PendingRounds returns every staged round not yet cleared, in
// ascending round order, plus the round numbers themselves so a
// caller can Clear exactly what it flushed.
func (b *Buffer) PendingRounds() ([]int64, []RoundStat, []Transmission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rounds []int64
	var stats []RoundStat
	var events []Transmission

	iter := b.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		var r round
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, nil, nil, fmt.Errorf("telemetry: decode staged round: %w", err)
		}
		rounds = append(rounds, r.Stat.Round)
		stats = append(stats, r.Stat)
		events = append(events, r.Transmissions...)
	}
	if err := iter.Error(); err != nil {
		return nil, nil, nil, fmt.Errorf("telemetry: iterate staged rounds: %w", err)
	}
	return rounds, stats, events, nil
}

// Clear drops the staged rows for the given rounds. Its caller is the
// `gossipd telemetry dump --clear` command, once it has printed them.
func (b *Buffer) Clear(rounds []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, r := range rounds {
		batch.Delete(roundKey(r))
	}
	return b.db.Write(batch, nil)
}

// Close releases the underlying database handle.
func (b *Buffer) Close() error {
	return b.db.Close()
}

func roundKey(round int64) []byte {
	return []byte(fmt.Sprintf("round:%020d", round))
}
