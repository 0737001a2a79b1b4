package http

import (
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/http/handlers"
	"github.com/eunoia-atlas/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	donationHandler *handlers.DonationHandler,
	flowHandler *handlers.FlowHandler,
	xamanHandler *handlers.XamanHandler,
	charityHandler *handlers.CharityHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rate-limited public endpoints
	public := app.Group("", middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Donation records and aggregates
	public.Get("/totals", donationHandler.GetTotals)
	public.Get("/scores/:charity", donationHandler.GetScores)
	public.Post("/donate", donationHandler.Donate)
	public.Post("/donations", donationHandler.SubmitDonorIntent)

	// Xaman QR signing proxy
	public.Post("/xaman/create-payment", xamanHandler.CreatePayment)
	public.Get("/xaman/payload/:payloadId", xamanHandler.GetPayloadStatus)

	// Whisper flow sessions
	public.Post("/flow", flowHandler.Create)
	public.Get("/flow/:id", flowHandler.Get)
	public.Put("/flow/:id/message", flowHandler.SetMessage)
	public.Put("/flow/:id/amount", flowHandler.SetAmount)
	public.Put("/flow/:id/identity", flowHandler.SetIdentity)
	public.Put("/flow/:id/target", flowHandler.SetTarget)
	public.Post("/flow/:id/start", flowHandler.Start)
	public.Post("/flow/:id/next", flowHandler.Next)
	public.Post("/flow/:id/back", flowHandler.Back)
	public.Post("/flow/:id/submit", flowHandler.Submit)
	public.Post("/flow/:id/retry-pending", flowHandler.RetryPending)
	public.Delete("/flow/:id", flowHandler.Teardown)
	public.Post("/connectivity", flowHandler.ReportConnectivity)

	// Admin surface
	admin := app.Group("", middleware.AdminMiddleware(cfg, log))
	admin.Post("/payout/:charity", donationHandler.Payout)
	admin.Get("/charities", charityHandler.List)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
