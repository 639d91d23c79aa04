// internal/handlers/api.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sphero-behavior/internal/behavior"
	"sphero-behavior/internal/config"
	"sphero-behavior/internal/expression"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/routine"
	"sphero-behavior/internal/utils"

	"github.com/labstack/echo/v4"
)

const (
	defaultTransitionLimit = 20
	maxTransitionLimit     = 500
	requestTimeout         = 3 * time.Second
)

// Behavior is the controller surface the API drives.
type Behavior interface {
	Snapshot() models.Snapshot
	PressKey(key string) error
	Say(phrase string) error
	Goto(ctx context.Context, state string) error
	RunRoutine(ctx context.Context, name string) error
}

// History serves recent transitions.
type History interface {
	RecentTransitions(ctx context.Context, device string, limit int) ([]models.StateTransition, error)
}

// APIHandler handles all API requests for one controller.
type APIHandler struct {
	behavior Behavior
	history  History
	device   string
	phrase   string
}

func NewAPIHandler(b Behavior, history History, cfg *config.Config) *APIHandler {
	return &APIHandler{
		behavior: b,
		history:  history,
		device:   cfg.DeviceName,
		phrase:   strings.ToLower(strings.TrimSpace(cfg.VoicePhrase)),
	}
}

// Register mounts the routes under /api/v1.
func (h *APIHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", h.HealthCheck)
	api.GET("/state", h.GetState)
	api.GET("/transitions", h.GetTransitions)
	api.GET("/routines", h.ListRoutines)
	api.GET("/expressions", h.ListExpressions)
	api.POST("/keys/:key", h.PressKey)
	api.POST("/voice", h.SayPhrase)
	api.POST("/state/:state", h.GotoState)
	api.POST("/routines/:name", h.StartRoutine)
}

// ===================================================================
// HEALTH CHECK
// ===================================================================

// HealthCheck reports liveness and whether the controller loop is running.
func (h *APIHandler) HealthCheck(c echo.Context) error {
	snap := h.behavior.Snapshot()
	data := map[string]interface{}{
		"service":   "sphero-behavior",
		"device":    h.device,
		"running":   snap.Running,
		"timestamp": time.Now().Unix(),
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Service is healthy", data))
}

// ===================================================================
// STATE
// ===================================================================

// GetState returns the live snapshot.
func (h *APIHandler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse("State retrieved successfully", h.behavior.Snapshot()))
}

// GetTransitions returns the most recent transitions, newest first.
func (h *APIHandler) GetTransitions(c echo.Context) error {
	limit := defaultTransitionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxTransitionLimit {
			return utils.NewBadRequestError("limit must be between 1 and 500", err)
		}
		limit = n
	}
	if h.history == nil {
		return utils.NewServiceUnavailableError("Transition history is disabled")
	}

	rows, err := h.history.RecentTransitions(c.Request().Context(), h.device, limit)
	if err != nil {
		return utils.NewInternalServerError("Failed to load transitions", err)
	}
	data := map[string]interface{}{
		"items": rows,
		"count": len(rows),
		"limit": limit,
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Transitions retrieved successfully", data))
}

// GotoState forces a transition.
func (h *APIHandler) GotoState(c echo.Context) error {
	name := c.Param("state")
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.behavior.Goto(ctx, name); err != nil {
		return behaviorError(err)
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("State changed", h.behavior.Snapshot()))
}

// ===================================================================
// INPUTS
// ===================================================================

// PressKey injects a key press as if typed on the terminal.
func (h *APIHandler) PressKey(c echo.Context) error {
	if err := h.requireRunning(); err != nil {
		return err
	}
	key := strings.ToLower(c.Param("key"))
	if err := h.behavior.PressKey(key); err != nil {
		return behaviorError(err)
	}
	return c.JSON(http.StatusAccepted, utils.SuccessResponse("Key accepted", map[string]string{"key": key}))
}

type voiceRequest struct {
	Text string `json:"text"`
}

// SayPhrase injects the trigger phrase. An optional {"text"} body must contain it.
func (h *APIHandler) SayPhrase(c echo.Context) error {
	if err := h.requireRunning(); err != nil {
		return err
	}

	var req voiceRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return utils.NewBadRequestError("Invalid request body", err)
		}
	}
	if req.Text != "" && !strings.Contains(strings.ToLower(req.Text), h.phrase) {
		return utils.NewBadRequestError("Text does not contain the trigger phrase")
	}

	if err := h.behavior.Say(h.phrase); err != nil {
		return behaviorError(err)
	}
	return c.JSON(http.StatusAccepted, utils.SuccessResponse("Phrase accepted", map[string]string{"phrase": h.phrase}))
}

// ===================================================================
// ROUTINES & EXPRESSIONS
// ===================================================================

// ListRoutines lists routine names.
func (h *APIHandler) ListRoutines(c echo.Context) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse("Routines retrieved successfully", routine.Names()))
}

// ListExpressions lists expression names.
func (h *APIHandler) ListExpressions(c echo.Context) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse("Expressions retrieved successfully", expression.Names()))
}

// StartRoutine starts a routine; only valid in INTERACT.
func (h *APIHandler) StartRoutine(c echo.Context) error {
	name := c.Param("name")
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.behavior.RunRoutine(ctx, name); err != nil {
		return behaviorError(err)
	}
	return c.JSON(http.StatusAccepted, utils.SuccessResponse("Routine started", map[string]string{"routine": name}))
}

func (h *APIHandler) requireRunning() error {
	if !h.behavior.Snapshot().Running {
		return utils.NewServiceUnavailableError("Controller is not running")
	}
	return nil
}

// behaviorError maps controller errors to API errors.
func behaviorError(err error) error {
	switch {
	case errors.Is(err, behavior.ErrUnknownState), errors.Is(err, behavior.ErrUnknownRoutine):
		return utils.NewBadRequestError(err.Error(), err)
	case errors.Is(err, behavior.ErrRoutineNotAllowed):
		return utils.NewConflictError(err.Error(), err)
	case errors.Is(err, behavior.ErrStopped), errors.Is(err, behavior.ErrEventDropped):
		return utils.NewServiceUnavailableError(err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return utils.NewServiceUnavailableError("Controller did not respond in time")
	default:
		return utils.NewInternalServerError("Request failed", err)
	}
}
