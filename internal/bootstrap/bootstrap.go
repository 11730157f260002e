// Package bootstrap assembles the analyzer from configuration.
package bootstrap

import (
	"accent-analyzer-go/internal/classifier"
	"accent-analyzer-go/internal/config"
	"accent-analyzer-go/internal/extractor"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/pipeline"
	"accent-analyzer-go/internal/retrieval"
	"accent-analyzer-go/internal/transcription"
)

// NewAnalyzer wires production collaborators. onStage may be nil. It fails
// when a model service is neither configured nor mocked.
func NewAnalyzer(cfg config.Config, log *logger.Logger, onStage func(pipeline.State)) (*pipeline.Analyzer, error) {
	if err := cfg.ValidateBackends(); err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Deps{
		Fetcher: retrieval.New(retrieval.Options{
			UserAgent:   cfg.DownloadUserAgent,
			Timeout:     cfg.DownloadTimeout(),
			MaxAttempts: cfg.DownloadMaxAttempts,
			BackoffBase: cfg.DownloadBackoffBase(),
		}, log),
		Extractor:   extractor.New(cfg.FFmpegPath, log),
		Transcriber: transcription.FromConfig(cfg),
		Classifier:  classifier.FromConfig(cfg),
		WorkDir:     cfg.WorkDir,
		Log:         log,
		OnStage:     onStage,
	}), nil
}
