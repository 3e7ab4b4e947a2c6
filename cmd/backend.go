package cmd

import (
	"github.com/chaos-io/bgstrip/config"
	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/ingest"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/chaos-io/bgstrip/pipeline"
	"github.com/chaos-io/bgstrip/rembg"
)

// newRemover builds the inference backend named by the configuration.
func newRemover(cfg *config.Config) (rembg.Remover, error) {
	switch cfg.Inference.Backend {
	case config.BackendOpaque:
		return rembg.NewDefaultRemBG(), nil
	case config.BackendChroma:
		return rembg.NewChromaRemBG(rembg.ChromaOptions{MaskSize: cfg.Inference.MaskSize}), nil
	case config.BackendBiRefNet:
		return rembg.NewBiRefNetRemBG(rembg.BiRefNetOptions{
			BaseURL:           cfg.BiRefNet.BaseURL,
			PollInterval:      cfg.BiRefNet.PollInterval,
			RequestsPerSecond: cfg.BiRefNet.RequestsPerSecond,
			MaxPixels:         cfg.Limits.MaxPixels,
			Logger:            logger.ComponentLogger("birefnet"),
		})
	default:
		return nil, errors.Fatalf("unknown inference backend %q", cfg.Inference.Backend)
	}
}

// newPipeline validates the directories and budget and wires the batch.
// Every error is fatal.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	root, err := ingest.NewInputRoot(cfg.Input.Dir)
	if err != nil {
		return nil, err
	}
	out, err := pipeline.NewOutputDirOutside(root, cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	budget, err := ingest.NewBudget(cfg.Limits.MaxFileBytes, cfg.Limits.MaxPixels)
	if err != nil {
		return nil, err
	}
	remover, err := newRemover(cfg)
	if err != nil {
		return nil, err
	}

	return pipeline.New(root, budget, out, remover, pipeline.Options{
		Workers:              cfg.Pipeline.Workers,
		InferenceConcurrency: cfg.Inference.Concurrency,
		InferenceTimeout:     cfg.Inference.Timeout,
		MaxDepth:             cfg.Pipeline.MaxDepth,
		Logger:               logger.ComponentLogger("pipeline"),
	})
}
