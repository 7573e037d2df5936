package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/aws"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
	"github.com/imrishuroy/go-draftsync/internal/sessions"
	"github.com/imrishuroy/go-draftsync/internal/validation"
)

// UserIDHeader carries the caller identity set by the upstream authorizer.
const UserIDHeader = "X-User-Id"

const userIDKey = "user_id"

// HandlerConfig groups dependencies for the draft handlers.
type HandlerConfig struct {
	Store drafts.Store
	// Registry enables the session routes. Sessions hold timers and state in
	// process memory, so it is left nil where the process is not long-lived.
	Registry  *sessions.Registry
	Publisher *aws.Publisher
	Logger    zerolog.Logger
	NowFunc   func() time.Time
}

// RegisterDraftRoutes registers the draft routes, and the session routes
// when cfg.Registry is set.
func RegisterDraftRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}
	h := &draftHandler{cfg: cfg, v: validation.New()}

	g := r.Group("/", requireUser())
	g.GET("/drafts/:formType", h.getDraft)
	g.DELETE("/drafts/:formType", h.deleteDraft)
	if cfg.Registry == nil {
		return
	}
	g.POST("/drafts/:formType/sessions", h.openSession)
	g.PUT("/sessions/:id/state", h.updateState)
	g.POST("/sessions/:id/submit", h.submit)
	g.DELETE("/sessions/:id", h.closeSession)
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_user_id"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

type draftHandler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

func (h *draftHandler) getDraft(c *gin.Context) {
	var p validation.FormTypeParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return
	}
	key := drafts.Key{UserID: c.GetString(userIDKey), FormType: p.FormType}

	rec, err := h.cfg.Store.Get(c.Request.Context(), key)
	if err != nil {
		h.cfg.Logger.Error().Err(err).Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draft_read_failed", "detail": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "draft_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"form_type":  rec.FormType,
		"payload":    rec.Payload,
		"updated_at": rec.UpdatedAt,
	})
}

func (h *draftHandler) deleteDraft(c *gin.Context) {
	var p validation.FormTypeParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return
	}
	key := drafts.Key{UserID: c.GetString(userIDKey), FormType: p.FormType}

	if err := h.cfg.Store.Delete(c.Request.Context(), key); err != nil {
		h.cfg.Logger.Error().Err(err).Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draft_delete_failed", "detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *draftHandler) openSession(c *gin.Context) {
	var p validation.FormTypeParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return
	}

	// hydration failures are absorbed by the controller; Open only fails on
	// a bad key
	s, payload, err := h.cfg.Registry.Open(c.Request.Context(), c.GetString(userIDKey), p.FormType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_draft_key", "detail": err.Error()})
		return
	}
	c.Header("Location", "/sessions/"+s.ID)
	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID,
		"form_type":  s.FormType,
		"payload":    payload,
	})
}

func (h *draftHandler) updateState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	req := validation.UpdateStateRequest{FormType: s.FormType}
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	s.Update(req.FormData, req.Flags)
	c.JSON(http.StatusAccepted, gin.H{"state": s.Controller().State().String()})
}

func (h *draftHandler) submit(c *gin.Context) {
	var p validation.SessionParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return
	}
	userID := c.GetString(userIDKey)
	ctx := c.Request.Context()

	s, err := h.cfg.Registry.Submit(ctx, userID, p.SessionID)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	// The registration already committed; a failed cleanup message only
	// leaves the draft to the submit-time delete and the table TTL.
	queued := false
	if h.cfg.Publisher.Enabled() {
		msg := aws.CleanupMessage{
			UserID:      userID,
			FormType:    s.FormType,
			SubmittedAt: h.cfg.NowFunc().UTC(),
			RequestID:   c.GetHeader("X-Request-Id"),
		}
		if err := h.cfg.Publisher.SendCleanupMessage(ctx, msg); err != nil {
			h.cfg.Logger.Warn().Err(err).Str("user_id", userID).Str("form_type", s.FormType).Msg("cleanup enqueue failed")
		} else {
			queued = true
		}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.ID, "status": "submitted", "cleanup_queued": queued})
}

func (h *draftHandler) closeSession(c *gin.Context) {
	var p validation.SessionParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return
	}
	if err := h.cfg.Registry.Close(c.GetString(userIDKey), p.SessionID); err != nil {
		writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *draftHandler) session(c *gin.Context) (*sessions.Session, bool) {
	var p validation.SessionParams
	if err := validation.BindURIAndValidate(c, &p, h.v); err != nil {
		return nil, false
	}
	s, err := h.cfg.Registry.Get(c.GetString(userIDKey), p.SessionID)
	if err != nil {
		writeSessionError(c, err)
		return nil, false
	}
	return s, true
}

func writeSessionError(c *gin.Context, err error) {
	if errors.Is(err, sessions.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "session_failed", "detail": err.Error()})
}
