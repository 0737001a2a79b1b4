package handlers

import (
	"github.com/eunoia-atlas/backend/internal/http/dto"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/payments"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// XamanHandler is the direct proxy surface for clients that drive the
// QR signing path without a flow session.
type XamanHandler struct {
	adapter *payments.XamanAdapter
	log     *zap.Logger
}

func NewXamanHandler(adapter *payments.XamanAdapter, log *zap.Logger) *XamanHandler {
	return &XamanHandler{adapter: adapter, log: log}
}

// CreatePayment registers a signing payload and returns the QR code
// and sign link.
// POST /xaman/create-payment
func (h *XamanHandler) CreatePayment(c *fiber.Ctx) error {
	var req dto.XamanCreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "a positive amount is required"})
	}

	res := h.adapter.Attempt(c.Context(), models.SubmissionPayload{
		AmountFiat: req.Amount,
		Charity:    req.Charity,
		CauseID:    req.CauseID,
		Method:     payments.MethodXaman,
	})
	if res.Kind == payments.ResultError {
		return c.Status(fiber.StatusBadGateway).JSON(dto.XamanCreatePaymentResponse{
			Success: false,
			Error:   res.Message,
		})
	}

	return c.JSON(dto.XamanCreatePaymentResponse{
		Success:   true,
		PayloadID: res.PayloadID,
		QRCode:    res.QRCode,
		SignLink:  res.SignLink,
	})
}

// GetPayloadStatus reports the signing state of a payload.
// GET /xaman/payload/:payloadId
func (h *XamanHandler) GetPayloadStatus(c *fiber.Ctx) error {
	res := h.adapter.Status(c.Context(), c.Params("payloadId"))

	switch res.Kind {
	case payments.ResultCompleted:
		return c.JSON(dto.XamanPayloadStatusResponse{
			Success:   true,
			Status:    "signed",
			Completed: true,
			TxID:      res.TxHash,
		})
	case payments.ResultError:
		return c.JSON(dto.XamanPayloadStatusResponse{
			Success: true,
			Status:  "declined",
		})
	default:
		return c.JSON(dto.XamanPayloadStatusResponse{
			Success: true,
			Status:  "pending",
		})
	}
}
