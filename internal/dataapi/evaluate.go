package dataapi

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
	"github.com/rafaeljc/skylab/internal/source"
)

// Evaluate evaluates the requested flags (all flags when none are named)
// against the request context.
//
// Flow: decode -> L1 (results cache) -> Engine -> exposures -> response
//
// It returns:
//   - OK with the assigned variants. Unassigned flags are absent.
//   - INVALID_ARGUMENT if the request is malformed.
//   - FAILED_PRECONDITION while no flag snapshot has been loaded.
//   - INTERNAL if the response cannot be encoded.
func (a *API) Evaluate(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	// 1. Input Validation (Fail Fast)
	req, err := DecodeRequest(msg)
	if err != nil {
		log.Warn("bad request", slog.String("error", err.Error()))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// 2. One snapshot for the whole request.
	snap := a.store.Current()
	if snap == nil {
		return nil, status.Error(codes.FailedPrecondition, "no flag snapshot loaded")
	}

	log.Debug("evaluating flags",
		slog.Int64("version", snap.Version),
		slog.Int("requested", len(req.FlagKeys)),
	)

	// 3. Evaluation (read-through L1)
	results := a.evaluate(snap, req)

	// 4. Exposures never fail the request.
	if req.TrackExposures && a.tracker != nil {
		if err := a.tracker.Track(ctx, req.Context, results); err != nil {
			log.Warn("exposure tracking failed", slog.String("error", err.Error()))
		}
	}

	resp, err := EncodeResponse(&Response{Version: snap.Version, Variants: results})
	if err != nil {
		log.Error("failed to encode response", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (a *API) evaluate(snap *source.Snapshot, req *Request) evaluation.Results {
	key := cache.ResultKey(snap.Version, requestKey(req))
	if results, ok := a.l1.Get(key); ok {
		return results
	}

	flags := snap.Select(req.FlagKeys...)
	results := a.engine.Evaluate(req.Context, flags)

	// Dependencies are evaluated but only requested flags are returned.
	if len(req.FlagKeys) > 0 {
		requested := make(evaluation.Results, len(req.FlagKeys))
		for _, k := range req.FlagKeys {
			if v, ok := results[k]; ok {
				requested[k] = v
			}
		}
		results = requested
	}

	observability.DataPlaneFlagsEvaluated.WithLabelValues("variant").Add(float64(len(results)))
	if unassigned := countRequested(snap, req) - len(results); unassigned > 0 {
		observability.DataPlaneFlagsEvaluated.WithLabelValues("none").Add(float64(unassigned))
	}

	a.l1.Set(key, results)
	return results
}

// countRequested is the number of flags the response could contain.
func countRequested(snap *source.Snapshot, req *Request) int {
	if len(req.FlagKeys) == 0 {
		return snap.Len()
	}
	known := make(map[string]struct{}, len(snap.Ordered))
	for _, f := range snap.Ordered {
		known[f.Key] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(req.FlagKeys))
	for _, k := range req.FlagKeys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := known[k]; ok {
			n++
		}
	}
	return n
}
