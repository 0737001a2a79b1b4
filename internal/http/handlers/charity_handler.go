package handlers

import (
	"encoding/json"

	"github.com/eunoia-atlas/backend/internal/charitymeta"
	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CharityHandler struct {
	cfg *config.Config
	rdb *redis.Client
	log *zap.Logger
}

func NewCharityHandler(cfg *config.Config, rdb *redis.Client, log *zap.Logger) *CharityHandler {
	return &CharityHandler{cfg: cfg, rdb: rdb, log: log}
}

// List returns the charity registry enriched with cached scraped
// metadata. Admin only.
// GET /charities
func (h *CharityHandler) List(c *fiber.Ctx) error {
	out := make([]dto.CharityResponse, 0, len(h.cfg.Charities))
	for _, ch := range h.cfg.Charities {
		resp := dto.CharityResponse{
			Code:    ch.Code,
			Name:    ch.Name,
			Wallet:  ch.WalletAddress,
			Website: ch.Website,
		}

		if raw, err := h.rdb.Get(c.Context(), charitymeta.CacheKey(ch.Code)).Result(); err == nil {
			var meta charitymeta.CharityMeta
			if err := json.Unmarshal([]byte(raw), &meta); err == nil {
				resp.Title = meta.Title
				resp.Description = meta.Description
				resp.ImageURL = meta.ImageURL
			}
		}
		out = append(out, resp)
	}
	return c.JSON(out)
}
