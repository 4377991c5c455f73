// Package dataapi implements the gRPC Data Plane for flag evaluation.
// It handles the high-performance read path for client SDKs.
package dataapi

import (
	"log/slog"

	"google.golang.org/grpc"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/exposure"
	"github.com/rafaeljc/skylab/internal/source"
)

// API implements EvaluationServer on top of the active flag snapshot.
type API struct {
	logger  *slog.Logger
	store   *source.Store
	l1      *cache.MemoryCache
	engine  *evaluation.Engine
	tracker *exposure.Tracker
}

var _ EvaluationServer = (*API)(nil)

// NewAPI creates a new Data Plane gRPC API instance. tracker may be nil, in
// which case exposure tracking requests are ignored.
func NewAPI(logger *slog.Logger, store *source.Store, l1 *cache.MemoryCache, engine *evaluation.Engine, tracker *exposure.Tracker) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		panic("dataapi: snapshot store cannot be nil")
	}
	if l1 == nil {
		panic("dataapi: l1 cache cannot be nil")
	}
	if engine == nil {
		panic("dataapi: evaluation engine cannot be nil")
	}

	return &API{
		logger:  logger,
		store:   store,
		l1:      l1,
		engine:  engine,
		tracker: tracker,
	}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, a)
}

// OnSnapshot drops cached results; wire it as the refresher's update hook.
func (a *API) OnSnapshot(snap *source.Snapshot) {
	a.l1.Invalidate()
	a.logger.Debug("l1 cache invalidated", slog.Int64("version", snap.Version))
}
