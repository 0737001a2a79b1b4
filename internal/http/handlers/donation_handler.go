package handlers

import (
	"github.com/eunoia-atlas/backend/internal/http/dto"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DonationHandler struct {
	svc *services.DonationService
	log *zap.Logger
}

func NewDonationHandler(svc *services.DonationService, log *zap.Logger) *DonationHandler {
	return &DonationHandler{svc: svc, log: log}
}

// GetTotals returns settled donation sums per charity.
// GET /totals
func (h *DonationHandler) GetTotals(c *fiber.Ctx) error {
	totals, err := h.svc.Totals(c.Context())
	if err != nil {
		h.log.Error("failed to load totals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(totals)
}

// GetScores lists a charity's pseudonymous donors by gift count.
// GET /scores/:charity
func (h *DonationHandler) GetScores(c *fiber.Ctx) error {
	scores, err := h.svc.Scores(c.Context(), c.Params("charity"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(scores)
}

// Donate performs a platform-signed transfer in one call.
// POST /donate
func (h *DonationHandler) Donate(c *fiber.Ctx) error {
	var req dto.DonateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Charity == "" || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "charity and a positive amount are required"})
	}

	tx, track, err := h.svc.Donate(c.Context(), req.Charity, req.CauseID, req.Amount, req.DonorEmail)
	if err != nil {
		h.log.Warn("donate failed", zap.String("charity", req.Charity), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.DonateResponse{Tx: tx, Track: track})
}

// SubmitDonorIntent accepts the flattened whisper payload from clients
// that run the flow themselves. Failures come back as a soft error so
// the client can queue the payload for retry.
// POST /donations
func (h *DonationHandler) SubmitDonorIntent(c *fiber.Ctx) error {
	var req dto.DonorIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.DonorIntent == "" || req.AmountFiat <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "donorIntent and a positive amountFiat are required"})
	}

	d, txURL, err := h.svc.SubmitDonorIntent(c.Context(), models.SubmissionPayload{
		DonorIntent: req.DonorIntent,
		AmountFiat:  req.AmountFiat,
		Currency:    req.Currency,
		DonorEmail:  req.DonorEmail,
		IsPublic:    req.IsPublic,
		Charity:     req.Charity,
		CauseID:     req.CauseID,
	})
	if err != nil {
		h.log.Warn("donor intent submission failed", zap.Error(err))
		return c.JSON(dto.DonorIntentResponse{Success: false, Message: err.Error()})
	}

	txHash := ""
	if d.TxHash != nil {
		txHash = *d.TxHash
	}
	return c.JSON(dto.DonorIntentResponse{
		Success:         true,
		TransactionHash: txHash,
		TransactionURL:  txURL,
	})
}

// Payout queues a mock off-ramp payout. Admin only.
// POST /payout/:charity
func (h *DonationHandler) Payout(c *fiber.Ctx) error {
	res, err := h.svc.Payout(c.Context(), c.Params("charity"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(res)
}
