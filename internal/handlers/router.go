package handlers

import (
	"net/http"
	"strings"

	"points/internal/config"
	"points/internal/middleware"
	"points/internal/models"
	"points/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	cfg        config.Config
	accounts   AccountService
	ledger     Ledger
	statements StatementService
	admin      AdminStore
	audit      AuditStore
	reconciler Reconciler
	hub        *websocket.Hub
	upgrader   gorillaws.Upgrader
	log        *zap.Logger
}

func New(cfg config.Config, accounts AccountService, ledger Ledger, statements StatementService, admin AdminStore, audit AuditStore, reconciler Reconciler, hub *websocket.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		accounts:   accounts,
		ledger:     ledger,
		statements: statements,
		admin:      admin,
		audit:      audit,
		reconciler: reconciler,
		hub:        hub,
		upgrader:   websocket.NewUpgrader(allowedOrigins(cfg.AllowedOrigins)),
		log:        logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(h.log))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Rota não encontrada.")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Método não permitido.")
	})

	router.Post("/cadastro", h.Register)
	router.Get("/confirm-email", h.ConfirmEmail)
	router.Post("/login", h.Login)

	authenticated := middleware.Auth(h.accounts)
	router.Route("/points", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/saldo", h.GetBalance)
		r.Post("/send", h.SendPoints)
		r.Get("/extrato", h.PointsStatement)
	})
	router.Route("/caixinha", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/deposit", h.Deposit)
		r.Get("/extrato", h.PiggyBankStatement)
	})
	router.With(authenticated).Delete("/account", h.DeleteAccount)
	router.Get("/ws/saldo", h.WSBalance)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RequireAdmin(h.admin))
		r.Get("/reconcile", h.Reconcile)
		r.Get("/audit", h.ListAuditLogs)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
