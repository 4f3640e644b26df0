// Package api exposes the node's HTTP surface: the eight contractual
// endpoints plus the ambient live-visualization and metrics endpoints.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/control"
	"github.com/aryanbagade/gossip-fabric/internal/gossip"
	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// Handler serves the per-node HTTP surface on top of a Controller.
type Handler struct {
	ctrl *control.Controller
	log  *zap.SugaredLogger
	hub  *hub
}

// NewHandler builds a Handler for ctrl.
func NewHandler(ctrl *control.Controller, log *zap.SugaredLogger) *Handler {
	return &Handler{ctrl: ctrl, log: log, hub: newHub()}
}

// HelloWorld implements GET /hello_world.
func (h *Handler) HelloWorld(c *gin.Context) {
	c.String(http.StatusOK, "Hello from gossip agent!")
}

// StartNode implements POST /start_node.
func (h *Handler) StartNode(c *gin.Context) {
	var req control.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body is not a valid start_node payload: "+err.Error(),
			"send node_list, target_count, gossip_rate, node_ip and client_port as JSON")
		return
	}

	if err := h.ctrl.Start(c.Request.Context(), req); err != nil {
		internalError(c, err, "failed to start the gossip engine")
		return
	}
	h.log.Infow("node started", "target_count", req.TargetCount, "gossip_rate", req.GossipRate)
	c.String(http.StatusOK, "OK")
}

// StopNode implements GET /stop_node.
func (h *Handler) StopNode(c *gin.Context) {
	h.ctrl.Stop()
	c.String(http.StatusOK, "OK")
}

// ResetNode implements GET /reset_node.
func (h *Handler) ResetNode(c *gin.Context) {
	h.ctrl.Reset()
	c.String(http.StatusOK, "OK")
}

// ReceiveMetadata implements POST /receive_metadata: the responder
// side of the three-message peer-exchange protocol.
func (h *Handler) ReceiveMetadata(c *gin.Context) {
	var req gossip.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body is not a valid receive_metadata payload: "+err.Error(),
			"send {metadata, self_key, self_record} as JSON")
		return
	}

	eng := h.ctrl.Engine()
	if eng == nil {
		notFound(c, "node has not been started", "call /start_node first")
		return
	}

	k, ok := h.ctrl.Store().CurrentKey()
	if !ok {
		notFound(c, "node has not opened a time_key yet", "call /start_node and wait for the first gossip cycle")
		return
	}

	responder := gossip.NewResponder(h.ctrl.Store(), h.ctrl.Self())
	resp := responder.Respond(k, eng.Cycle(), req)
	h.hub.broadcast(event{Kind: "exchange_received", Peer: string(req.SelfKey)})
	c.JSON(http.StatusOK, resp)
}

// ReceiveMessage implements GET /receive_message?inc_round=<N>: the
// third leg of the peer-exchange protocol, ingesting the records the
// initiator decided the responder needed.
func (h *Handler) ReceiveMessage(c *gin.Context) {
	round, err := parseInt64Query(c, "inc_round")
	if err != nil {
		badRequest(c, "inc_round must be an integer cycle number", "pass ?inc_round=<N>")
		return
	}

	var updates map[model.PeerKey]model.Record
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, "request body is not a valid {peer_key: record} map: "+err.Error())
		return
	}

	eng := h.ctrl.Engine()
	if eng == nil {
		notFound(c, "node has not been started", "call /start_node first")
		return
	}

	k, ok := h.ctrl.Store().CurrentKey()
	if !ok {
		notFound(c, "node has not opened a time_key yet", "call /start_node and wait for the first gossip cycle")
		return
	}
	h.ctrl.Store().Ingest(k, round, updates)
	c.String(http.StatusOK, "OK")
}

// Metadata implements GET /metadata: snapshot metadata at the current
// time_key, keyed by peer, including this node's own counter+digest.
// This is the exact shape the quorum-read client fetches from peers.
func (h *Handler) Metadata(c *gin.Context) {
	k, ok := h.ctrl.Store().CurrentKey()
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.ctrl.Store().FullMetadata(k))
}

// GetRecentData implements GET /get_recent_data_from_node: the latest
// snapshot's full content.
func (h *Handler) GetRecentData(c *gin.Context) {
	_, records, ok := h.ctrl.Store().Latest()
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseInt64Query(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Query(name), 10, 64)
}
