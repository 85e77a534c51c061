// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package serving

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/lookup"
	"github.com/tomtom215/pricecast/internal/metrics"
	"github.com/tomtom215/pricecast/internal/model"
)

var (
	// ErrNoRun is returned when no finished training run is available.
	ErrNoRun = errors.New("no trained runs available")

	// ErrRunUnavailable is returned when a run exists but its model or
	// lookup tables cannot be loaded.
	ErrRunUnavailable = errors.New("run artifacts unavailable")

	// ErrPrediction is returned when the model fails on a valid row.
	ErrPrediction = errors.New("prediction failed")
)

// LogTargetParam is the run parameter recording whether the model was
// trained on log1p(price).
const LogTargetParam = "log_target"

// DefaultBandRatio is the confidence band half-width as a share of the estimate.
const DefaultBandRatio = 0.10

// Runs is the part of the run registry the predictor reads.
type Runs interface {
	GetRun(ctx context.Context, runID string) (*artifacts.Run, error)
	LatestFinishedRun(ctx context.Context, experiment string) (*artifacts.Run, error)
}

// ModelLoader loads a run's regressor.
type ModelLoader func(ctx context.Context, runID string) (model.Regressor, error)

// TablesLoader loads a run's lookup tables.
type TablesLoader func(ctx context.Context, runID string) (lookup.Tables, error)

// ArtifactLoaders returns loaders reading the configured artifact names from
// readers in order.
func ArtifactLoaders(cfg *config.ArtifactsConfig, readers ...artifacts.Reader) (ModelLoader, TablesLoader) {
	models := func(ctx context.Context, runID string) (model.Regressor, error) {
		gbm, err := artifacts.LoadModel(ctx, runID, cfg.ModelArtifact, readers...)
		if err != nil {
			return nil, err
		}
		return gbm, nil
	}
	tables := func(ctx context.Context, runID string) (lookup.Tables, error) {
		return artifacts.LoadLookupTables(ctx, runID, cfg.LookupArtifact, cfg.LookupFile, readers...)
	}
	return models, tables
}

// Options tune a Predictor.
type Options struct {
	Experiment string

	// PinnedRunID, when set, is served instead of the latest finished run.
	PinnedRunID string

	BandRatio float64
	ModelName string

	// Now supplies the sale date for every prediction; defaults to time.Now.
	Now func() time.Time
}

// Prediction is the answer to one request.
type Prediction struct {
	PredictedPrice     float64      `json:"predicted_price"`
	ConfidenceInterval [2]float64   `json:"confidence_interval"`
	ModelVersion       string       `json:"model_version"`
	RunID              string       `json:"run_id"`
	FeaturesUsed       FeaturesUsed `json:"features_used"`
}

// Predictor answers prediction requests from the current run.
type Predictor struct {
	runs     Runs
	resolver DistrictResolver
	opts     Options

	loadModel  ModelLoader
	loadTables TablesLoader

	models       *RunCache[model.Regressor]
	transformers *RunCache[*Transformer]
}

// NewPredictor wires a predictor. Zero options get their defaults.
func NewPredictor(runs Runs, resolver DistrictResolver, loadModel ModelLoader, loadTables TablesLoader, opts Options) *Predictor {
	if opts.BandRatio <= 0 {
		opts.BandRatio = DefaultBandRatio
	}
	if opts.ModelName == "" {
		opts.ModelName = model.Name
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Predictor{
		runs:         runs,
		resolver:     resolver,
		opts:         opts,
		loadModel:    loadModel,
		loadTables:   loadTables,
		models:       NewRunCache[model.Regressor]("model"),
		transformers: NewRunCache[*Transformer]("transformer"),
	}
}

// Predict resolves the postcode, selects the run, rebuilds the Feature Row
// and runs the model. Errors are ErrEmptyPostcode, ErrPostcodeNotFound,
// ErrNoRun, ErrRunUnavailable or ErrPrediction.
func (p *Predictor) Predict(ctx context.Context, req Request) (Prediction, error) {
	start := time.Now()
	defer func() { metrics.PredictionDuration.Observe(time.Since(start).Seconds()) }()

	pred, err := p.predict(ctx, req.Normalize())
	metrics.PredictionsTotal.WithLabelValues(outcome(err)).Inc()
	return pred, err
}

func (p *Predictor) predict(ctx context.Context, req Request) (Prediction, error) {
	if req.Postcode == "" {
		return Prediction{}, ErrEmptyPostcode
	}
	district, ok := p.resolver.ResolveOne(ctx, req.Postcode)
	if !ok {
		return Prediction{}, ErrPostcodeNotFound
	}

	run, err := p.CurrentRun(ctx)
	if err != nil {
		return Prediction{}, err
	}
	ctx = logging.ContextWithRunID(ctx, run.ID)

	reg, tr, err := p.Load(ctx, run.ID)
	if err != nil {
		return Prediction{}, err
	}

	row, used := tr.Build(req, district, p.opts.Now())
	value, err := infer(reg, row)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Interface("row", row).Msg("Prediction failed")
		return Prediction{}, ErrPrediction
	}
	if UsesLogTarget(run) {
		value = math.Expm1(value)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		logging.Ctx(ctx).Error().Float64("value", value).Msg("Prediction is not finite")
		return Prediction{}, ErrPrediction
	}

	price := round2(value)
	logging.Ctx(ctx).Debug().
		Str("district", district).
		Float64("predicted_price", price).
		Strs("defaulted", used.Defaulted).
		Msg("Prediction served")

	return Prediction{
		PredictedPrice:     price,
		ConfidenceInterval: [2]float64{round2(price * (1 - p.opts.BandRatio)), round2(price * (1 + p.opts.BandRatio))},
		ModelVersion:       p.opts.ModelName + ":" + run.ID,
		RunID:              run.ID,
		FeaturesUsed:       used,
	}, nil
}

// CurrentRun returns the pinned run, or the latest finished run.
func (p *Predictor) CurrentRun(ctx context.Context) (*artifacts.Run, error) {
	var (
		run *artifacts.Run
		err error
	)
	if p.opts.PinnedRunID != "" {
		run, err = p.runs.GetRun(ctx, p.opts.PinnedRunID)
	} else {
		run, err = p.runs.LatestFinishedRun(ctx, p.opts.Experiment)
	}
	if errors.Is(err, artifacts.ErrNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRun, err)
	}
	return run, nil
}

// Load returns the model and transformer for runID, loading them into the
// run caches on first use.
func (p *Predictor) Load(ctx context.Context, runID string) (model.Regressor, *Transformer, error) {
	reg, err := p.models.GetOrLoad(ctx, runID, p.loadModel)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("run_id", runID).Msg("Failed to load model")
		return nil, nil, fmt.Errorf("%w: %w", ErrRunUnavailable, err)
	}
	tr, err := p.transformers.GetOrLoad(ctx, runID, func(ctx context.Context, id string) (*Transformer, error) {
		tables, err := p.loadTables(ctx, id)
		if err != nil {
			return nil, err
		}
		return NewTransformer(tables, p.resolver), nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("run_id", runID).Msg("Failed to load lookup tables")
		return nil, nil, fmt.Errorf("%w: %w", ErrRunUnavailable, err)
	}
	metrics.ServingRunLoaded.Set(1)
	return reg, tr, nil
}

// Warmup loads the current run so the first request does not pay for it.
func (p *Predictor) Warmup(ctx context.Context) (string, error) {
	run, err := p.CurrentRun(ctx)
	if err != nil {
		return "", err
	}
	if _, _, err := p.Load(ctx, run.ID); err != nil {
		return run.ID, err
	}
	return run.ID, nil
}

// Loaded reports which runs the model and transformer caches hold.
func (p *Predictor) Loaded() (modelRun, transformerRun string) {
	return p.models.Current(), p.transformers.Current()
}

// Experiment returns the experiment the predictor serves.
func (p *Predictor) Experiment() string { return p.opts.Experiment }

// UsesLogTarget reports whether run was trained on log1p(price). Runs that
// never logged the parameter are assumed to be.
func UsesLogTarget(run *artifacts.Run) bool {
	v, ok := run.Param(LogTargetParam)
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func infer(reg model.Regressor, row features.Row) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
		}
	}()
	out, err := reg.Predict([]features.Row{row})
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("model returned %d predictions for 1 row", len(out))
	}
	return out[0], nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPostcodeNotFound), errors.Is(err, ErrEmptyPostcode):
		return "not_found"
	case errors.Is(err, ErrNoRun), errors.Is(err, ErrRunUnavailable):
		return "no_run"
	default:
		return "error"
	}
}
