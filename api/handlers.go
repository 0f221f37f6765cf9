package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"task-manager/domain"
	"task-manager/storage"
)

// Register wires up all API routes on the provided Echo instance. dedup may be
// nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, store Store, dedup Deduper, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/api/tasks", listTasks(store, logger))
	e.POST("/api/tasks", createTask(store, dedup, logger))
	e.GET("/api/tasks/:id", getTask(store, logger))
	e.PUT("/api/tasks/:id", updateTask(store, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, logger))
	e.GET("/healthz", healthz(store))
}

func healthz(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Tasks: store.Len()})
	}
}

func listTasks(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, _ := newRequestMetrics(c.Request().Context(), logger, "GET /api/tasks")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		start := time.Now()
		tasks := store.List()
		metrics.ObserveStore(time.Since(start))
		metrics.SetTasks(len(tasks))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func getTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, _ := newRequestMetrics(c.Request().Context(), logger, "GET /api/tasks/:id")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		start := time.Now()
		task, ok := store.Get(c.Param("id"))
		metrics.ObserveStore(time.Since(start))
		if !ok {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: domain.ErrTaskNotFound.Error()})
		}
		metrics.SetTasks(1)
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(store Store, dedup Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "POST /api/tasks")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		task, decodeErr := decodeTask(c.Request().Body)
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: decodeErr.Error()})
		}

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if dedup == nil {
			key = ""
		}
		if key != "" {
			fresh, dedupErr := dedup.Add(ctx, key)
			switch {
			case dedupErr != nil:
				// Redis unavailable: continue without deduplication.
				logger.WithError(dedupErr).Warn("idempotency check failed, processing request anyway")
				key = ""
			case !fresh:
				metrics.SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key was already processed"})
			}
		}

		start := time.Now()
		stored, addErr := store.Add(ctx, task)
		metrics.ObserveStore(time.Since(start))
		if addErr != nil {
			if key != "" {
				if rmErr := dedup.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
					logger.WithError(rmErr).Warn("failed to release idempotency key")
				}
			}
			metrics.SetErrorStage("store")
			return storeError(c, addErr)
		}
		metrics.SetTasks(1)
		return c.JSON(http.StatusCreated, stored)
	}
}

func updateTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "PUT /api/tasks/:id")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		task, decodeErr := decodeTask(c.Request().Body)
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: decodeErr.Error()})
		}

		start := time.Now()
		updated, updateErr := store.Update(ctx, c.Param("id"), task)
		metrics.ObserveStore(time.Since(start))
		if updateErr != nil {
			metrics.SetErrorStage("store")
			return storeError(c, updateErr)
		}
		metrics.SetTasks(1)
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "DELETE /api/tasks/:id")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		start := time.Now()
		removed, removeErr := store.Remove(ctx, c.Param("id"))
		metrics.ObserveStore(time.Since(start))
		if removeErr != nil {
			metrics.SetErrorStage("store")
			return storeError(c, removeErr)
		}
		if !removed {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: domain.ErrTaskNotFound.Error()})
		}
		metrics.SetTasks(1)
		return c.NoContent(http.StatusNoContent)
	}
}

var errInvalidBody = errors.New("invalid body")

// decodeTask reads a task form submission. The due date is parsed here so
// malformed dates never reach the store.
func decodeTask(body io.Reader) (domain.Task, error) {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, requestMaxSize))
	dec.DisallowUnknownFields()

	var req taskRequest
	if err := dec.Decode(&req); err != nil {
		return domain.Task{}, errInvalidBody
	}
	return domain.NewTask(req.Title, req.Description, req.DueDate, req.Category)
}

func storeError(c echo.Context, err error) error {
	var saveErr *storage.SaveError
	switch {
	case errors.Is(err, domain.ErrInvalidDueDate):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrTaskNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &saveErr):
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: saveErr.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
