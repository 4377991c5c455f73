package controlapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/store"
)

// handleCreateFlag processes POST /api/v1/flags.
//
// The new config is checked together with every live flag, so a write can
// never introduce a dependency cycle.
func (a *API) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateFlagRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return
	}

	if !a.checkCycles(w, r, req.Config) {
		return
	}

	flag := &store.Flag{
		Key:         req.Key,
		Description: req.Description,
		Config:      req.Config,
	}

	if err := a.flags.CreateFlag(r.Context(), flag); err != nil {
		if errors.Is(err, store.ErrFlagExists) {
			writeError(w, r, http.StatusConflict, &ErrorResponse{
				Code:    "ERR_CONFLICT",
				Message: "A flag with this key already exists",
			})
			return
		}

		log.Error("failed to create flag in db", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to create flag in database",
		})
		return
	}

	a.notifyChangeAsync(log, flag.Key, flag.Version)

	log.Info("flag created successfully", slog.String("flag_key", flag.Key), slog.Int64("flag_id", flag.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, flagFromStore(flag))
}

// handleListFlags processes GET /api/v1/flags?page=&page_size=.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return
	}
	pageSize, err := parseOptionalInt(r, "page_size", 10)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return
	}

	// Out of bounds values are clamped rather than rejected.
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}

	flags, totalItems, err := a.flags.ListFlags(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		log.Error("failed to list flags from db", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to list flags",
		})
		return
	}

	dtos := make([]Flag, len(flags))
	for i, f := range flags {
		dtos[i] = flagFromStore(f)
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data: dtos,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleGetFlag processes GET /api/v1/flags/{key}.
func (a *API) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	flag, err := a.flags.GetFlagByKey(r.Context(), key)
	if err != nil {
		a.writeStoreError(w, r, key, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, flagFromStore(flag))
}

// handleUpdateFlag processes PATCH /api/v1/flags/{key}.
func (a *API) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "key")

	var req UpdateFlagRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	req.Sanitize()
	if errResp := req.Validate(key); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return
	}

	if req.Config != nil && !a.checkCycles(w, r, *req.Config) {
		return
	}

	flag, err := a.flags.UpdateFlag(r.Context(), &store.UpdateFlagParams{
		Key:         key,
		Version:     req.Version,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		a.writeStoreError(w, r, key, err)
		return
	}

	a.notifyChangeAsync(log, flag.Key, flag.Version)

	log.Info("flag updated", slog.String("flag_key", key), slog.Int64("version", flag.Version))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, flagFromStore(flag))
}

// handleDeleteFlag processes DELETE /api/v1/flags/{key}?version=N.
func (a *API) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "key")

	version, err := parseOptionalInt(r, "version", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return
	}
	if version < 1 {
		writeError(w, r, http.StatusBadRequest, invalidInput("version", "Version is required for deletes"))
		return
	}

	newVersion, err := a.flags.DeleteFlag(r.Context(), key, int64(version))
	if err != nil {
		a.writeStoreError(w, r, key, err)
		return
	}

	a.notifyChangeAsync(log, key, newVersion)

	log.Info("flag deleted", slog.String("flag_key", key), slog.Int64("version", newVersion))
	w.WriteHeader(http.StatusNoContent)
}

// checkCycles rejects cfg when, merged into the live flag set, it closes a
// dependency cycle. It writes the error response and returns false when the
// request must stop.
func (a *API) checkCycles(w http.ResponseWriter, r *http.Request, cfg evaluation.Flag) bool {
	if len(cfg.Dependencies) == 0 {
		return true
	}

	flags, err := a.configsWith(r.Context(), cfg)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to load flags for cycle check", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to load flags",
		})
		return false
	}

	if _, err := evaluation.TopologicalSort(flags); err != nil {
		writeError(w, r, http.StatusBadRequest, cycleResponse(err))
		return false
	}
	return true
}

// configsWith returns the live configs with cfg replacing or added to them.
func (a *API) configsWith(ctx context.Context, cfg evaluation.Flag) ([]evaluation.Flag, error) {
	rows, err := a.flags.ListAllFlags(ctx)
	if err != nil {
		return nil, err
	}

	configs := store.Configs(rows)
	for i := range configs {
		if configs[i].Key == cfg.Key {
			configs[i] = cfg
			return configs, nil
		}
	}
	return append(configs, cfg), nil
}

func cycleResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    "ERR_DEPENDENCY_CYCLE",
		Message: err.Error(),
	}
	var cycleErr *evaluation.CycleError
	if errors.As(err, &cycleErr) {
		for _, key := range cycleErr.Cycle {
			resp.Details = append(resp.Details, ErrorDetail{Field: "dependencies", Issue: key})
		}
	}
	return resp
}

// writeStoreError maps repository errors to HTTP responses.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, key string, err error) {
	switch {
	case errors.Is(err, store.ErrFlagNotFound):
		writeError(w, r, http.StatusNotFound, &ErrorResponse{
			Code:    "ERR_NOT_FOUND",
			Message: fmt.Sprintf("Flag %q not found", key),
		})
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, r, http.StatusConflict, &ErrorResponse{
			Code:    "ERR_VERSION_CONFLICT",
			Message: "The flag was modified by another request; reload it and retry",
		})
	default:
		logger.FromContext(r.Context()).Error("flag repository failure",
			slog.String("flag_key", key),
			slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to access flag storage",
		})
	}
}

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}
