package controlapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/store"
)

// handleEvaluate processes POST /api/v1/evaluate.
//
// It evaluates the stored configs directly, bypassing the syncer, so
// operators can check a change before data planes pick it up.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req EvaluateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}
	if req.Context == nil {
		req.Context = evaluation.Context{}
	}

	rows, err := a.flags.ListAllFlags(r.Context())
	if err != nil {
		log.Error("failed to load flags for evaluation", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to load flags",
		})
		return
	}

	results, err := a.engine.EvaluateFlags(req.Context, store.Configs(rows), req.FlagKeys...)
	if err != nil {
		var cycleErr *evaluation.CycleError
		if errors.As(err, &cycleErr) {
			writeError(w, r, http.StatusBadRequest, cycleResponse(err))
			return
		}
		log.Error("evaluation failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Evaluation failed",
		})
		return
	}

	if len(req.FlagKeys) > 0 {
		results = onlyKeys(results, req.FlagKeys)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, EvaluateResponse{Variants: results})
}

// onlyKeys drops dependency results the caller did not ask for.
func onlyKeys(results evaluation.Results, keys []string) evaluation.Results {
	out := make(evaluation.Results, len(keys))
	for _, k := range keys {
		if v, ok := results[k]; ok {
			out[k] = v
		}
	}
	return out
}
