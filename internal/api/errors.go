package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sierrasoftworks/humane-errors-go"
)

// errorResponse is the serializable shape of a humane.Error, returned
// in place of bare gin.H{"error": ...} maps so every failure response
// carries actionable advice alongside the message.
type errorResponse struct {
	Message string   `json:"message"`
	Advice  []string `json:"advice,omitempty"`
}

func fromHumane(err humane.Error) *errorResponse {
	if err == nil {
		return nil
	}
	return &errorResponse{Message: err.Error(), Advice: err.Advice()}
}

// abort writes a humane-shaped error body and stops the handler chain.
func abort(c *gin.Context, status int, err humane.Error) {
	c.AbortWithStatusJSON(status, fromHumane(err))
}

func badRequest(c *gin.Context, message string, advice ...string) {
	abort(c, http.StatusBadRequest, humane.New(message, advice...))
}

func internalError(c *gin.Context, cause error, message string, advice ...string) {
	abort(c, http.StatusInternalServerError, humane.Wrap(cause, message, advice...))
}

func notFound(c *gin.Context, message string, advice ...string) {
	abort(c, http.StatusNotFound, humane.New(message, advice...))
}
