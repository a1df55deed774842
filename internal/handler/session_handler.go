package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/binder"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/session"
	"github.com/stemsi/examflow/internal/upstream"
	"github.com/stemsi/examflow/internal/validator"
)

// SessionHandler exposes the session lifecycle to the UI host.
type SessionHandler struct {
	manager *session.Manager
	log     zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		log:     log.With().Str("component", "session_handler").Logger(),
	}
}

// CreateSessionRequest is the payload for starting a session.
type CreateSessionRequest struct {
	Mode            string `json:"mode" binding:"required,oneof=exam homework quiz"`
	SectionType     string `json:"section_type,omitempty" binding:"max=40"`
	ItemID          string `json:"item_id" binding:"required,max=80"`
	ContentID       string `json:"content_id,omitempty" binding:"max=80"`
	DurationSeconds int    `json:"duration_seconds" binding:"min=0"`
}

// CreateSession godoc
// POST /api/v1/sessions
// Starts (or resumes) a session for one content item.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	item := session.Item{
		Mode:        upstream.Mode(req.Mode),
		SectionType: req.SectionType,
		ItemID:      req.ItemID,
		ContentID:   req.ContentID,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
	}

	orch, err := h.manager.Create(c.Request.Context(), item, middleware.GetBearer(c))
	if err != nil {
		code := response.ErrStartFailed
		if ue := upstream.AsError(err); ue != nil && ue.Status >= 400 && ue.Status < 500 {
			code = response.ErrUpstreamRejected
		}
		response.FailWithDetail(c, http.StatusBadGateway, code, err.Error())
		return
	}

	h.log.Info().
		Str("session_id", orch.ID().String()).
		Str("item_id", item.ItemID).
		Str("subject", middleware.GetSubject(c)).
		Msg("Session created")
	response.Success(c, http.StatusCreated, gin.H{"session": orch.Snapshot()})
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns the current session snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": orch.Snapshot()})
}

// ApplyAnswer godoc
// PUT /api/v1/sessions/:session_id/answers
// Applies one kind-specific answer mutation.
func (h *SessionHandler) ApplyAnswer(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}

	var op session.AnswerOp
	if fields := validator.Bind(c, &op); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := orch.Apply(op); err != nil {
		h.failAnswer(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": orch.Snapshot()})
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moves the current question-group pointer.
func (h *SessionHandler) Navigate(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}

	var cmd session.NavCommand
	if fields := validator.Bind(c, &cmd); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	idx, err := orch.Navigate(cmd)
	if err != nil {
		response.FailWithDetail(c, http.StatusConflict, response.ErrWrongState, err.Error())
		return
	}
	response.Success(c, http.StatusOK, gin.H{"current_index": idx})
}

// Flush godoc
// POST /api/v1/sessions/:session_id/flush
// Triggers one immediate autosave round.
func (h *SessionHandler) Flush(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := orch.Flush(c.Request.Context()); err != nil {
		response.FailWithDetail(c, http.StatusConflict, response.ErrWrongState, err.Error())
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"autosave": orch.Snapshot().Autosave})
}

// SubmitRequest is the payload for a user-initiated submit.
type SubmitRequest struct {
	Force bool `json:"force"`
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Finalizes the session. Non-forced submits require at least one answer.
func (h *SessionHandler) Submit(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := orch.Submit(c.Request.Context(), req.Force)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"session": orch.Snapshot()})
	case errors.Is(err, session.ErrNoAnswers):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoAnswers)
	case errors.Is(err, session.ErrSubmitInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
	case errors.Is(err, session.ErrWrongState):
		response.FailWithDetail(c, http.StatusConflict, response.ErrWrongState, err.Error())
	default:
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrSubmitFailed, err.Error())
	}
}

// SwitchRequest is the payload for a submit-then-switch.
type SwitchRequest struct {
	Mode            string `json:"mode" binding:"required,oneof=exam homework quiz"`
	SectionType     string `json:"section_type,omitempty" binding:"max=40"`
	ItemID          string `json:"item_id" binding:"required,max=80"`
	ContentID       string `json:"content_id,omitempty" binding:"max=80"`
	DurationSeconds int    `json:"duration_seconds" binding:"min=0"`
}

// Switch godoc
// POST /api/v1/sessions/:session_id/switch
// Submits the outgoing section, then starts the incoming one.
func (h *SessionHandler) Switch(c *gin.Context) {
	orch, ok := h.lookup(c)
	if !ok {
		return
	}

	var req SwitchRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	next := session.Item{
		Mode:        upstream.Mode(req.Mode),
		SectionType: req.SectionType,
		ItemID:      req.ItemID,
		ContentID:   req.ContentID,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
	}

	if err := orch.Switch(c.Request.Context(), next); err != nil {
		if errors.Is(err, session.ErrWrongState) {
			response.FailWithDetail(c, http.StatusConflict, response.ErrWrongState, err.Error())
			return
		}
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrSubmitFailed, err.Error())
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": orch.Snapshot()})
}

// DeleteSession godoc
// DELETE /api/v1/sessions/:session_id
// Tears the session down without submitting; the attempt stays resumable.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	if err := h.manager.Remove(id); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Orchestrator, bool) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}
	orch, err := h.manager.Get(id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return nil, false
	}
	return orch, true
}

func (h *SessionHandler) failAnswer(c *gin.Context, err error) {
	switch {
	case errors.Is(err, binder.ErrUnknownQuestion):
		response.Fail(c, http.StatusNotFound, response.ErrUnknownQuestion)
	case errors.Is(err, binder.ErrWrongKind),
		errors.Is(err, binder.ErrUnknownOption),
		errors.Is(err, binder.ErrUnknownLabel),
		errors.Is(err, binder.ErrUnknownBlank),
		errors.Is(err, binder.ErrInvalidBool):
		response.FailWithDetail(c, http.StatusUnprocessableEntity, response.ErrInvalidAnswerOp, err.Error())
	case errors.Is(err, session.ErrWrongState):
		response.FailWithDetail(c, http.StatusConflict, response.ErrWrongState, err.Error())
	default:
		response.FailWithDetail(c, http.StatusInternalServerError, response.ErrInternal, err.Error())
	}
}
