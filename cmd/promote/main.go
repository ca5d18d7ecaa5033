// modelyard promotion job.
//
// Compares the latest evaluation metrics against the configured accuracy
// threshold and, on a pass, copies the staging artifact into production
// and transitions the registry version to the Production stage.
//
// Exit codes:
//
//	0 — promoted (registry sync may still have been skipped; it is
//	    best-effort and the local copy is authoritative)
//	1 — threshold not met; the model was rejected. Distinguished so
//	    upstream orchestration halts instead of deploying a weak model.
//	2 — configuration, metrics, or filesystem failure.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modelyard/modelyard/internal/config"
	"github.com/modelyard/modelyard/internal/metrics"
	"github.com/modelyard/modelyard/internal/promote"
	"github.com/modelyard/modelyard/internal/registry"
)

const (
	exitRejected = 1
	exitFatal    = 2
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	paramsPath := flag.String("params", config.Path(), "path to the parameter file")
	metricsPath := flag.String("metrics", metrics.DefaultEvaluationPath, "path to the evaluation metrics record")
	trainPath := flag.String("train-metrics", metrics.DefaultTrainingPath, "path to the training metrics record (optional)")
	flag.Parse()

	params, err := config.Load(*paramsPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load parameters")
		os.Exit(exitFatal)
	}

	eval, err := metrics.LoadEvaluation(*metricsPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load evaluation metrics")
		os.Exit(exitFatal)
	}

	// The training record is optional; when present its run ID ties this
	// promotion back to the registry run that produced the artifact.
	if train, err := metrics.LoadTraining(*trainPath); err == nil && train.RunID != "" {
		log.Logger = log.Logger.With().Str("training_run", train.RunID).Logger()
	}

	client := registry.New(params.Registry.TrackingURI,
		registry.WithTimeout(params.Registry.Timeout.Std()))
	gate := promote.NewGate(params, client)

	decision, err := gate.Promote(context.Background(), eval)
	switch {
	case errors.Is(err, promote.ErrThresholdNotMet):
		log.Error().
			Float64("accuracy", decision.Accuracy).
			Float64("min_accuracy", decision.Threshold).
			Msg("Model NOT promoted to production")
		os.Exit(exitRejected)
	case err != nil:
		log.Error().Err(err).Msg("Promotion failed")
		os.Exit(exitFatal)
	}

	log.Info().
		Str("run_id", decision.RunID).
		Bool("registry_synced", decision.RegistrySynced).
		Msg("Model promoted to production")
}
