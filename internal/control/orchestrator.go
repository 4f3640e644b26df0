// Package control owns the per-node control plane: the /start_node,
// /stop_node, /reset_node lifecycle and the collaborators an external
// orchestrator's delete_nodes/restart_all surface describes.
package control

import (
	"context"

	"go.uber.org/zap"
)

// Orchestrator is the container-runtime collaborator, specified only
// at its interface: the real implementation (talking to the container
// runtime over its own port-4000 surface) is out of scope for this
// core.
type Orchestrator interface {
	DeleteNodes(ctx context.Context) error
	RestartAll(ctx context.Context) error
}

// NopOrchestrator satisfies Orchestrator for local/single-process
// runs where no container runtime is present.
type NopOrchestrator struct {
	log *zap.SugaredLogger
}

// NewNopOrchestrator builds a NopOrchestrator that logs calls instead
// of acting on them.
func NewNopOrchestrator(log *zap.SugaredLogger) *NopOrchestrator {
	return &NopOrchestrator{log: log}
}

// DeleteNodes is a no-op; it only logs that the call was made.
func (n *NopOrchestrator) DeleteNodes(ctx context.Context) error {
	n.log.Infow("orchestrator: delete_nodes requested but no container runtime is wired")
	return nil
}

// RestartAll is a no-op; it only logs that the call was made.
func (n *NopOrchestrator) RestartAll(ctx context.Context) error {
	n.log.Infow("orchestrator: restart_all requested but no container runtime is wired")
	return nil
}
