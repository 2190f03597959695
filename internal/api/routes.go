package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"toolbox/internal/auth"
	"toolbox/internal/model"
	"toolbox/internal/pipeline"
	"toolbox/internal/pocketbase"
	"toolbox/internal/utils"
)

// RecordStore is the slice of the record client the HTTP surface needs.
type RecordStore interface {
	ListEssays(ctx context.Context) ([]model.Essay, error)
	GetEssay(ctx context.Context, id string) (*model.Essay, error)
	CreateEssay(ctx context.Context, title, content, voiceID string) (*model.Essay, error)
	DeleteEssay(ctx context.Context, id string) error
	GetAudio(ctx context.Context, id string) (string, []byte, error)
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	store     RecordStore
	processor *pipeline.Processor
	auth      *auth.Authenticator
	log       *logrus.Logger
}

// NewHandler creates the HTTP surface.
func NewHandler(store RecordStore, processor *pipeline.Processor, authenticator *auth.Authenticator, log *logrus.Logger) *Handler {
	return &Handler{
		store:     store,
		processor: processor,
		auth:      authenticator,
		log:       log,
	}
}

// RegisterRoutes wires all endpoints. Essay routes sit behind the session
// guard; the auth routes and the health check do not.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.healthCheck)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", h.login)
		authGroup.POST("/logout", h.logout)
		authGroup.GET("/status", h.authStatus)
	}

	essays := r.Group("/api/essays", RequireAuth(h.auth))
	{
		essays.GET("", h.listEssays)
		essays.POST("", h.createEssay)
		essays.GET("/:id", h.getEssay)
		essays.DELETE("/:id", h.deleteEssay)
		essays.POST("/:id/process", h.processEssay)
		essays.GET("/:id/audio", h.getEssayAudio)
	}
}

// healthCheck returns server health status.
func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "toolbox-backend",
	})
}

// writeError is the single place errors become HTTP status codes. Record
// store failures surface the upstream status and message; upstream 5xx and
// connectivity failures map to 502.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		utils.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		utils.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		utils.Error(c, http.StatusUnauthorized, err.Error())
	default:
		var apiErr *pocketbase.APIError
		if errors.As(err, &apiErr) {
			status := apiErr.Status
			if status >= 500 || status == 0 {
				status = http.StatusBadGateway
			}
			utils.Error(c, status, apiErr.Message)
			return
		}

		h.log.WithError(err).Error("request failed")
		utils.Error(c, http.StatusInternalServerError, err.Error())
	}
}
