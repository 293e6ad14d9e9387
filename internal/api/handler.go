// Package api exposes reconciliation over HTTP.
package api

import (
	"bytes"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/ledger"
	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/reconcile"
	"github.com/insightdelivered/metals-cost-ledger/internal/writer"
)

// ReconcileRequest is the body of POST /api/reconcile.
type ReconcileRequest struct {
	Messages []models.RawMessage `json:"messages"`
	Persist  bool                `json:"persist"`
}

// ReconcileResponse is the JSON response from the /api/reconcile endpoint.
type ReconcileResponse struct {
	Success   bool                `json:"success"`
	RunID     string              `json:"runId"`
	Rows      []models.CostRecord `json:"rows"`
	CSV       string              `json:"csv"`
	Orders    int                 `json:"orders"`
	Skipped   int                 `json:"skipped"`
	Cancelled int                 `json:"cancelled"`
	Dropped   int                 `json:"dropped"`
	Merged    int                 `json:"merged"`
}

// LedgerResponse is the JSON response from the /api/ledger endpoint.
type LedgerResponse struct {
	Success bool                `json:"success"`
	Rows    []models.CostRecord `json:"rows"`
	Count   int                 `json:"count"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Handler holds the HTTP handlers for the API. Store may be nil, in which
// case persisting and reading the ledger are unavailable.
type Handler struct {
	Engine  *reconcile.Engine
	Store   ledger.Store
	Version string

	log *zap.Logger
	mu  sync.Mutex // one ledger writer at a time
}

// NewHandler wires the engine and ledger into a handler.
func NewHandler(engine *reconcile.Engine, store ledger.Store, version string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if engine == nil {
		engine = reconcile.NewEngine(log)
	}
	return &Handler{Engine: engine, Store: store, Version: version, log: log}
}

// NewApp returns a fiber app with panic recovery, request logging and the
// API routes.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "metals-cost-ledger",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(h.logRequests)
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/reconcile", h.HandleReconcile)
	app.Get("/api/ledger", h.HandleLedger)
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.Version,
	})
}

func (h *Handler) HandleReconcile(c *fiber.Ctx) error {
	var req ReconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if len(req.Messages) == 0 {
		return writeError(c, fiber.StatusBadRequest, "no messages supplied")
	}
	if req.Persist && h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "no ledger configured")
	}

	rep := h.Engine.Reconcile(req.Messages)

	var buf bytes.Buffer
	if err := (&writer.CSVWriter{IncludeHeader: true}).Write(&buf, rep.Rows); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "CSV generation failed: "+err.Error())
	}

	resp := ReconcileResponse{
		Success:   true,
		RunID:     rep.RunID,
		Rows:      rep.Rows,
		CSV:       buf.String(),
		Orders:    rep.Orders,
		Skipped:   rep.Skipped,
		Cancelled: rep.Cancelled,
		Dropped:   rep.Dropped,
	}
	// nil marshals to null, not []
	if resp.Rows == nil {
		resp.Rows = []models.CostRecord{}
	}

	if req.Persist && len(rep.Rows) > 0 {
		h.mu.Lock()
		_, err := ledger.MergeInto(h.Store, rep.Rows)
		h.mu.Unlock()
		if err != nil {
			h.log.Error("ledger merge failed", zap.String("run_id", rep.RunID), zap.Error(err))
			return writeError(c, fiber.StatusInternalServerError, "ledger merge failed: "+err.Error())
		}
		resp.Merged = len(rep.Rows)
	}
	return c.JSON(resp)
}

func (h *Handler) HandleLedger(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "no ledger configured")
	}
	h.mu.Lock()
	rows, err := h.Store.Load()
	h.mu.Unlock()
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	if rows == nil {
		rows = []models.CostRecord{}
	}
	return c.JSON(LedgerResponse{Success: true, Rows: rows, Count: len(rows)})
}

func (h *Handler) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	h.log.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)))
	return err
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return writeError(c, code, err.Error())
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: msg})
}
