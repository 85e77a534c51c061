// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/lookup"
	"github.com/tomtom215/pricecast/internal/metrics"
	"github.com/tomtom215/pricecast/internal/model"
)

// QualityReportName is the artifact holding the data-quality report.
const QualityReportName = "data_quality_report.json"

// DatasetCache persists prepared records keyed by source checksum.
type DatasetCache interface {
	IsPersisted(ctx context.Context, checksum string) (table string, ok bool, err error)
	Persist(ctx context.Context, checksum string, records []dataset.Record) (string, error)
	Load(ctx context.Context, table string) ([]dataset.Record, error)
	Reset(ctx context.Context) error
}

// Dataset names the training inputs.
type Dataset struct {
	// Path is the Price Paid CSV or XLSX file.
	Path string

	// AugmentPath optionally names an energy certificate file providing
	// floor areas by postcode.
	AugmentPath string
}

// TrainResult summarises a finished run.
type TrainResult struct {
	RunID     string
	Rows      int
	Failed    int
	Metrics   model.Metrics
	FromCache bool
}

// Trainer runs complete training jobs.
type Trainer struct {
	cfg      config.TrainingConfig
	art      config.ArtifactsConfig
	pipeline *Pipeline
	cache    DatasetCache
	store    artifacts.Store
}

// NewTrainer wires a trainer. cache may be nil to always rebuild.
func NewTrainer(cfg config.TrainingConfig, art config.ArtifactsConfig, p *Pipeline, cache DatasetCache, store artifacts.Store) *Trainer {
	return &Trainer{cfg: cfg, art: art, pipeline: p, cache: cache, store: store}
}

// Train prepares the dataset (from cache when the file was seen before),
// fits the model, evaluates it on the held-out split and records the run.
// A run that fails after it was created is marked FAILED.
func (t *Trainer) Train(ctx context.Context, ds Dataset) (res TrainResult, err error) {
	run, err := t.store.CreateRun(ctx, t.art.ExperimentName)
	if err != nil {
		return res, fmt.Errorf("create run: %w", err)
	}
	res.RunID = run.ID
	ctx = logging.ContextWithRunID(ctx, run.ID)
	log := logging.Ctx(ctx)
	log.Info().Str("dataset", ds.Path).Str("experiment", t.art.ExperimentName).Msg("Training run started")

	defer func() {
		if err == nil {
			return
		}
		if ferr := t.store.FinishRun(context.WithoutCancel(ctx), run.ID, artifacts.StatusFailed); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to mark run as failed")
		}
		log.Error().Err(err).Msg("Training run failed")
	}()

	records, cleanStats, failed, fromCache, err := t.prepare(ctx, ds)
	if err != nil {
		return res, err
	}
	res.FromCache = fromCache
	res.Failed = failed

	built, err := t.pipeline.Build(records)
	if err != nil {
		return res, err
	}
	res.Rows = len(built.Rows)

	report := dataset.BuildQualityReport(built.Records, t.cfg.Model.RandomState)
	report.Clean = cleanStats

	gbm, m, err := t.fit(ctx, built)
	if err != nil {
		return res, err
	}
	res.Metrics = m

	if err := t.record(ctx, run.ID, ds, built, gbm, m, report, failed); err != nil {
		return res, err
	}
	if err := t.store.FinishRun(ctx, run.ID, artifacts.StatusFinished); err != nil {
		return res, fmt.Errorf("finish run: %w", err)
	}

	log.Info().
		Int("rows", res.Rows).
		Float64("rmse", m.RMSE).
		Float64("r2", m.R2).
		Bool("from_cache", fromCache).
		Msg("Training run finished")
	return res, nil
}

// prepare returns resolved records, from the dataset cache when possible.
func (t *Trainer) prepare(ctx context.Context, ds Dataset) ([]dataset.Record, *dataset.CleanStats, int, bool, error) {
	log := logging.Ctx(ctx)

	checksum, err := dataset.FileSHA256(ds.Path)
	if err != nil {
		return nil, nil, 0, false, err
	}

	if t.cache != nil {
		if t.cfg.DevMode {
			if err := t.cache.Reset(ctx); err != nil {
				return nil, nil, 0, false, fmt.Errorf("reset dataset cache: %w", err)
			}
		}
		table, ok, err := t.cache.IsPersisted(ctx, checksum)
		if err != nil {
			return nil, nil, 0, false, err
		}
		if ok {
			records, err := t.cache.Load(ctx, table)
			if err != nil {
				return nil, nil, 0, false, err
			}
			log.Info().Str("table", table).Int("rows", len(records)).Msg("Dataset loaded from cache")
			return records, nil, 0, true, nil
		}
	}

	start := time.Now()
	rows, err := dataset.Load(ds.Path, dataset.LoadOptions{})
	if err != nil {
		return nil, nil, 0, false, err
	}
	records, st := dataset.Clean(rows, dataset.CleanOptions{
		ClipQuantile:        t.cfg.Cleaning.PriceClipQ,
		DropMissingPostcode: t.cfg.Cleaning.DropMissingPC,
	})
	metrics.ObserveStage("clean", start, len(records))
	log.Info().Int("input", st.Input).Int("kept", st.Kept).Interface("dropped", st.Dropped).Msg("Dataset cleaned")

	if ds.AugmentPath != "" {
		if err := t.augment(ctx, ds.AugmentPath, records); err != nil {
			return nil, nil, 0, false, err
		}
	}

	prepared, failed, err := t.pipeline.Prepare(ctx, records)
	if err != nil {
		return nil, nil, len(failed), false, err
	}

	if t.cache != nil {
		if _, err := t.cache.Persist(ctx, checksum, prepared); err != nil {
			return nil, nil, len(failed), false, fmt.Errorf("persist dataset: %w", err)
		}
	}
	return prepared, &st, len(failed), false, nil
}

func (t *Trainer) augment(ctx context.Context, path string, records []dataset.Record) error {
	key := t.cfg.Augment.MergeKey
	if key == "" {
		key = dataset.ColPostcode
	}
	rows, err := dataset.Load(path, dataset.LoadOptions{Required: []string{key, "floor_area"}})
	if err != nil {
		return fmt.Errorf("load augment dataset: %w", err)
	}
	areas, err := dataset.FloorAreaByKey(rows, key)
	if err != nil {
		return err
	}
	res, err := dataset.AddFloorArea(records, areas, t.cfg.Augment.MinMatchRate)
	logging.Ctx(ctx).Info().
		Int("keys", res.Keys).
		Int("matched", res.Matched).
		Float64("match_rate", res.MatchRate).
		Msg("Floor area merged")
	return err
}

func (t *Trainer) fit(ctx context.Context, built Result) (*model.GBM, model.Metrics, error) {
	mc := t.cfg.Model
	y := built.Targets
	if mc.LogTarget {
		y = make([]float64, len(built.Targets))
		for i, v := range built.Targets {
			y[i] = math.Log1p(v)
		}
	}
	y, clip := model.ClipQuantile(y, mc.ClipTargetQ)
	logging.Ctx(ctx).Debug().Float64("clip", clip).Msg("Target clipped")

	part, err := model.Split(len(built.Rows), mc.TestSize, mc.ValSize, mc.RandomState)
	if err != nil {
		return nil, model.Metrics{}, err
	}

	cfg := model.DefaultConfig()
	cfg.Iterations = mc.Iterations
	cfg.Depth = mc.Depth
	cfg.LearningRate = mc.LearningRate
	cfg.EarlyStop = mc.EarlyStop
	if mc.MinLeafSamples > 0 {
		cfg.MinLeafSamples = mc.MinLeafSamples
	}

	start := time.Now()
	gbm, err := model.Fit(ctx, cfg,
		model.Subset(built.Rows, part.Train), model.Subset(y, part.Train),
		model.Subset(built.Rows, part.Val), model.Subset(y, part.Val))
	if err != nil {
		return nil, model.Metrics{}, fmt.Errorf("fit model: %w", err)
	}
	metrics.ObserveStage("fit", start, len(part.Train))

	evalIdx := part.Test
	if len(evalIdx) == 0 {
		evalIdx = part.Train
	}
	pred, err := gbm.Predict(model.Subset(built.Rows, evalIdx))
	if err != nil {
		return nil, model.Metrics{}, err
	}
	actual := model.Subset(built.Targets, evalIdx)
	if mc.LogTarget {
		for i := range pred {
			pred[i] = math.Expm1(pred[i])
		}
	}
	m, err := model.Evaluate(pred, actual)
	if err != nil {
		return nil, model.Metrics{}, err
	}
	return gbm, m, nil
}

func (t *Trainer) record(ctx context.Context, runID string, ds Dataset, built Result, gbm *model.GBM,
	m model.Metrics, report dataset.QualityReport, failed int) error {
	mc := t.cfg.Model
	params := map[string]string{
		"dataset":              ds.Path,
		"augment_dataset":      ds.AugmentPath,
		"iterations":           strconv.Itoa(mc.Iterations),
		"depth":                strconv.Itoa(mc.Depth),
		"learning_rate":        strconv.FormatFloat(mc.LearningRate, 'g', -1, 64),
		"early_stop":           strconv.Itoa(mc.EarlyStop),
		"log_target":           strconv.FormatBool(mc.LogTarget),
		"clip_target_quantile": strconv.FormatFloat(mc.ClipTargetQ, 'g', -1, 64),
		"test_size":            strconv.FormatFloat(mc.TestSize, 'g', -1, 64),
		"val_size":             strconv.FormatFloat(mc.ValSize, 'g', -1, 64),
		"random_state":         strconv.FormatUint(mc.RandomState, 10),
		"best_iteration":       strconv.Itoa(gbm.BestIteration),
		"model_name":           model.Name,
		"features":             fmt.Sprint(features.Columns),
	}
	if err := t.store.LogParams(ctx, runID, params); err != nil {
		return fmt.Errorf("log params: %w", err)
	}

	if err := t.store.LogMetrics(ctx, runID, map[string]float64{
		"rmse":             m.RMSE,
		"mae":              m.MAE,
		"r2":               m.R2,
		"eval_rows":        float64(m.N),
		"train_rows":       float64(len(built.Rows)),
		"failed_postcodes": float64(failed),
		"val_rmse":         gbm.ValRMSE,
		"lookup_districts": float64(len(built.Tables.BoroughPriceTrend)),
	}); err != nil {
		return fmt.Errorf("log metrics: %w", err)
	}

	var buf bytes.Buffer
	if err := gbm.Encode(&buf); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := t.store.PutArtifact(ctx, runID, t.art.ModelArtifact, buf.Bytes()); err != nil {
		return fmt.Errorf("store model: %w", err)
	}

	buf.Reset()
	if err := lookup.Encode(&buf, built.Tables); err != nil {
		return fmt.Errorf("encode lookup tables: %w", err)
	}
	lookupName := t.art.LookupArtifact
	if lookupName == "" {
		lookupName = lookup.DefaultArtifactName
	}
	if err := t.store.PutArtifact(ctx, runID, lookupName, buf.Bytes()); err != nil {
		return fmt.Errorf("store lookup tables: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode quality report: %w", err)
	}
	if err := t.store.PutArtifact(ctx, runID, QualityReportName, data); err != nil {
		return fmt.Errorf("store quality report: %w", err)
	}
	return nil
}
