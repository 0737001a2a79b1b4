package handlers

import (
	"errors"

	"github.com/eunoia-atlas/backend/internal/flow"
	"github.com/eunoia-atlas/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FlowHandler struct {
	engine  *flow.Engine
	watcher *flow.Watcher
	log     *zap.Logger
}

func NewFlowHandler(engine *flow.Engine, watcher *flow.Watcher, log *zap.Logger) *FlowHandler {
	return &FlowHandler{engine: engine, watcher: watcher, log: log}
}

func (h *FlowHandler) flowError(c *fiber.Ctx, err error) error {
	var ve *flow.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: ve.Error()})
	case errors.Is(err, flow.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "session not found"})
	case errors.Is(err, flow.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "invalid flow transition"})
	default:
		h.log.Error("flow operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

func (h *FlowHandler) sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// Create starts a new flow session, or resumes one by id with the
// persisted draft restored.
// POST /flow
func (h *FlowHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateFlowRequest
	_ = c.BodyParser(&req)

	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
		}
		return c.JSON(h.engine.GetOrCreate(c.Context(), id))
	}
	return c.Status(fiber.StatusCreated).JSON(h.engine.Create(c.Context()))
}

// Get returns the session view, reviving persisted state if this
// process has not seen the session yet.
// GET /flow/:id
func (h *FlowHandler) Get(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	return c.JSON(h.engine.GetOrCreate(c.Context(), id))
}

// PUT /flow/:id/message
func (h *FlowHandler) SetMessage(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	var req dto.SetMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	view, err := h.engine.SetMessage(c.Context(), id, req.Message)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// PUT /flow/:id/amount
func (h *FlowHandler) SetAmount(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	var req dto.SetAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	view, err := h.engine.SetAmount(c.Context(), id, req.Amount)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// PUT /flow/:id/identity
func (h *FlowHandler) SetIdentity(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	var req dto.SetIdentityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	view, err := h.engine.SetIdentity(c.Context(), id, req.IsPublic, req.Email)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// PUT /flow/:id/target
func (h *FlowHandler) SetTarget(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	var req dto.SetTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	view, err := h.engine.SetTarget(c.Context(), id, req.Charity, req.CauseID)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// POST /flow/:id/start
func (h *FlowHandler) Start(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	view, err := h.engine.Start(c.Context(), id)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// POST /flow/:id/next
func (h *FlowHandler) Next(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	view, err := h.engine.Next(c.Context(), id)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// POST /flow/:id/back
func (h *FlowHandler) Back(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	view, err := h.engine.Back(c.Context(), id)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// POST /flow/:id/submit
func (h *FlowHandler) Submit(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	var req dto.SubmitFlowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Method == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "method is required"})
	}

	view, err := h.engine.Submit(c.Context(), id, req.Method)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(view)
}

// POST /flow/:id/retry-pending
func (h *FlowHandler) RetryPending(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	delivered, err := h.engine.RetryPending(c.Context(), id)
	if err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(fiber.Map{"delivered": delivered})
}

// DELETE /flow/:id
func (h *FlowHandler) Teardown(c *fiber.Ctx) error {
	id, err := h.sessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}
	if err := h.engine.Teardown(id); err != nil {
		return h.flowError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// ReportConnectivity lets clients forward their browser online event;
// the offline-to-online edge triggers pending retries.
// POST /connectivity
func (h *FlowHandler) ReportConnectivity(c *fiber.Ctx) error {
	var req dto.ConnectivityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	h.watcher.Notify(c.Context(), req.Online)
	return c.JSON(dto.SuccessResponse{OK: true})
}
