package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// Sink is the external analytics-store collaborator: a push-mode
// flush posts retired snapshots to it, tagged with this node's ip,
// port, and each snapshot's own time_key as the round. The gossip
// cycle at which the flush happened is not sent.
type Sink interface {
	FlushSnapshots(ctx context.Context, nodeIP string, snapshots map[int64]map[model.PeerKey]model.Record) error
}

// HTTPSink posts flushed snapshots to the orchestrator's
// push_data_to_database endpoint on the orchestrator port.
type HTTPSink struct {
	http             *http.Client
	orchestratorAddr string
	selfPort         int
}

// NewHTTPSink builds a Sink against an orchestrator reachable at
// orchestratorAddr (host:port), tagging every push with selfPort.
func NewHTTPSink(orchestratorAddr string, selfPort int, timeout time.Duration) *HTTPSink {
	return &HTTPSink{http: &http.Client{Timeout: timeout}, orchestratorAddr: orchestratorAddr, selfPort: selfPort}
}

// FlushSnapshots posts each retired snapshot as its own request, one
// per round.
func (s *HTTPSink) FlushSnapshots(ctx context.Context, nodeIP string, snapshots map[int64]map[model.PeerKey]model.Record) error {
	for round, snap := range snapshots {
		if err := s.pushOne(ctx, nodeIP, round, snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *HTTPSink) pushOne(ctx context.Context, nodeIP string, round int64, snap map[model.PeerKey]model.Record) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("telemetry: marshal snapshot for round %d: %w", round, err)
	}

	url := fmt.Sprintf("http://%s/push_data_to_database?ip=%s&port=%d&round=%d", s.orchestratorAddr, nodeIP, s.selfPort, round)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telemetry: build push request for round %d: %w", round, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: push request for round %d: %w", round, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telemetry: push for round %d returned status %d", round, resp.StatusCode)
	}
	return nil
}
