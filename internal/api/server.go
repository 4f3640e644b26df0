package api

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/control"
)

// NewRouter assembles the node's Gin router: the eight contractual
// endpoints, plus the ambient /ws and /metrics endpoints, structured
// logging/recovery middleware, and a permissive CORS setup.
func NewRouter(ctrl *control.Controller, metrics *Metrics, log *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(log.Desugar(), "", true))
	router.Use(ginzap.RecoveryWithZap(log.Desugar(), true))

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := NewHandler(ctrl, log)

	router.GET("/hello_world", h.HelloWorld)
	router.POST("/start_node", h.StartNode)
	router.GET("/stop_node", h.StopNode)
	router.GET("/reset_node", h.ResetNode)
	router.POST("/receive_metadata", h.ReceiveMetadata)
	router.GET("/receive_message", h.ReceiveMessage)
	router.GET("/metadata", h.Metadata)
	router.GET("/get_recent_data_from_node", h.GetRecentData)

	router.GET("/ws", h.WebSocketHandler)
	router.GET("/metrics", metrics.Handler())

	return router
}
