// Package server composes the model serving daemon: telemetry, the
// registry client, model acquisition, and the HTTP router.
//
// Initialization is one-shot and happens entirely inside New, before any
// listener accepts traffic. Model acquisition failures degrade to an
// unavailable-but-running server; they never abort startup.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/modelyard/modelyard/internal/api"
	"github.com/modelyard/modelyard/internal/api/handlers"
	"github.com/modelyard/modelyard/internal/config"
	"github.com/modelyard/modelyard/internal/registry"
	"github.com/modelyard/modelyard/internal/serving"
	"github.com/modelyard/modelyard/internal/telemetry"
)

// Version is the build version reported by /version. Overridable at link
// time with -ldflags "-X ...server.Version=".
var Version = "0.1.0"

// Server holds the initialized serving daemon.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// State is the model state built at startup.
	State *serving.State

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New loads parameters and initializes the serving daemon.
func New(ctx context.Context) (*Server, error) {
	params, err := config.Load(config.Path())
	if err != nil {
		return nil, err
	}
	return NewWithParams(ctx, params)
}

// NewWithParams initializes the serving daemon with explicit parameters.
func NewWithParams(ctx context.Context, params *config.Params) (*Server, error) {
	shutdown, err := telemetry.Init(telemetry.FromEnv())
	if err != nil {
		return nil, err
	}

	client := registry.New(params.Registry.TrackingURI,
		registry.WithTimeout(params.Registry.Timeout.Std()))

	// Registry calls are already bounded by the client timeout, so
	// startup cannot hang on an unreachable registry.
	state := serving.Initialize(ctx, serving.DefaultStrategies(params, client)...)

	log.Info().
		Str("status", string(state.Status)).
		Str("source", string(state.Source)).
		Str("version", state.Version).
		Msg("Serving state initialized")

	h := handlers.New(state, Version)

	return &Server{
		Handler:      api.NewRouter(h),
		State:        state,
		Port:         params.Server.Port,
		ShutdownFunc: shutdown,
	}, nil
}
