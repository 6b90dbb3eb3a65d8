// Package status serves a read-only view of the checkpoint, the audit
// journal and the process counters.
package status

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/state"
	"github.com/rcliao/archive-sweep/internal/store"
)

// History is the part of the journal the server reads.
type History interface {
	List(ctx context.Context, p store.ListParams) ([]model.Action, error)
	Search(ctx context.Context, p store.SearchParams) ([]model.Action, error)
	Stats(ctx context.Context, dbPath string) (*store.Stats, error)
}

// Handler handles status requests.
type Handler struct {
	statePath   string
	history     History
	journalPath string
}

// NewHandler creates a handler. The checkpoint is re-read on every request
// because a run in another process may be writing it.
func NewHandler(statePath string, history History, journalPath string) *Handler {
	return &Handler{statePath: statePath, history: history, journalPath: journalPath}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/state", h.State)
	e.GET("/history", h.History)
	e.GET("/stats", h.Stats)
	e.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))
}

// Health handles GET /healthz
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// State handles GET /state
func (h *Handler) State(c echo.Context) error {
	rec, err := state.ReadFile(h.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no state recorded yet",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to read state: %v", err),
		})
	}
	return c.JSON(http.StatusOK, rec)
}

// History handles GET /history?outcome=&limit=&q=
func (h *Handler) History(c echo.Context) error {
	outcome := model.Outcome(c.QueryParam("outcome"))
	if outcome != "" && !model.ValidOutcomes[outcome] {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown outcome %q", outcome),
		})
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		limit = n
	}

	ctx := c.Request().Context()
	var (
		actions []model.Action
		err     error
	)
	if q := c.QueryParam("q"); q != "" {
		actions, err = h.history.Search(ctx, store.SearchParams{Query: q, Outcome: outcome, Limit: limit})
	} else {
		actions, err = h.history.List(ctx, store.ListParams{Outcome: outcome, Limit: limit})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to read history: %v", err),
		})
	}
	if actions == nil {
		actions = []model.Action{}
	}
	return c.JSON(http.StatusOK, actions)
}

// Stats handles GET /stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.history.Stats(c.Request().Context(), h.journalPath)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to read stats: %v", err),
		})
	}
	return c.JSON(http.StatusOK, st)
}

// New builds the echo instance with the status routes.
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	h.RegisterRoutes(e)
	return e
}

// Serve runs the server until ctx is cancelled.
func Serve(ctx context.Context, e *echo.Echo, addr string, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", "addr", addr)
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Status server stopped")
	return nil
}
