package server

import (
	"net/http"

	"logistics-recon/internal/carriers"
	"logistics-recon/internal/config"
	"logistics-recon/internal/database"
	"logistics-recon/internal/handlers"
	"logistics-recon/internal/workers"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires all HTTP handlers onto a chi router. Middleware is
// applied by the caller around the returned handler.
func NewRouter(cfg *config.Config, db *database.DB) http.Handler {
	gateway := carriers.NewGateway(carriers.Config{
		BaseURL:   cfg.CarrierBaseURL,
		AccessKey: cfg.CarrierAccessKey,
		SecretKey: cfg.CarrierSecretKey,
		Login:     cfg.CarrierLogin,
		Password:  cfg.CarrierPassword,
		DevMode:   cfg.CarrierDevMode,
	})
	engine := workers.NewMailSyncEngine(cfg, db)

	healthHandler := handlers.NewHealthHandler(db, cfg)
	mailHandler := handlers.NewMailHandler(engine, db.MailEvents)
	orderHandler := handlers.NewOrderHandler(db)
	shippingHandler := handlers.NewShippingHandler(db, gateway, cfg)

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HealthCheck)

		r.Post("/mail/sync", mailHandler.SyncMail)
		r.Get("/mail/events", mailHandler.GetMailEvents)

		r.Get("/shipping/quotes", shippingHandler.GetQuotes)

		r.Post("/orders", orderHandler.CreateOrder)
		r.Get("/orders/{id}", orderHandler.GetOrderByID)
		r.Post("/orders/{id}/label", shippingHandler.BuyLabel)
		r.Get("/orders/{id}/label/document", shippingHandler.DownloadLabel)
		r.Get("/orders/{id}/status", shippingHandler.GetOrderStatus)
	})

	return r
}
