// internal/processor/processor.go
package processor

import (
	"context"
	"fmt"

	"accent-analyzer-go/internal/pipeline"
	"accent-analyzer-go/internal/types"
)

// AnalysisResponse is returned by /analyze and printed by the CLI.
type AnalysisResponse struct {
	Source     string               `json:"source"`
	Accent     string               `json:"accent,omitempty"`
	Code       string               `json:"code,omitempty"`
	Confidence *float64             `json:"confidence,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	Error      *types.Failure       `json:"error,omitempty"`
	Result     types.PipelineResult `json:"-"`
}

// Analyzer is the one operation the boundary needs.
type Analyzer interface {
	Analyze(ctx context.Context, src types.SourceReference) types.PipelineResult
}

// ProcessSingle runs one source through the analyzer and shapes the response.
func ProcessSingle(ctx context.Context, a Analyzer, src types.SourceReference) AnalysisResponse {
	res := a.Analyze(ctx, src)
	out := AnalysisResponse{
		Source:     describe(src),
		DurationMs: res.Duration.Milliseconds(),
		Error:      res.Failure,
		Result:     res,
	}
	if res.Succeeded() {
		c := res.Classification
		conf := c.Confidence
		out.Accent = c.Accent
		out.Code = c.Code
		out.Confidence = &conf
		out.Summary = res.Summary
	}
	return out
}

// Message is the single line shown to a user for a response.
func (r AnalysisResponse) Message() string {
	if r.Error != nil {
		return fmt.Sprintf("%s failed at %s: %s", r.Error.Kind, r.Error.Stage, r.Error.Message)
	}
	return fmt.Sprintf("Detected Accent: %s, Confidence Score: %.2f%%", r.Accent, *r.Confidence)
}

// StageLabel is a human label for a pipeline state, used for progress output.
func StageLabel(s pipeline.State) string {
	switch s {
	case pipeline.PrerequisiteCheck:
		return "Checking ffmpeg"
	case pipeline.Acquiring:
		return "Retrieving video"
	case pipeline.Extracting:
		return "Extracting audio"
	case pipeline.Transcribing:
		return "Transcribing speech"
	case pipeline.Classifying:
		return "Classifying accent"
	case pipeline.Done:
		return "Analysis complete"
	case pipeline.Failed:
		return "Analysis failed"
	default:
		return string(s)
	}
}

func describe(src types.SourceReference) string {
	if src.Kind == types.SourceLocal {
		return "upload"
	}
	return src.RawURL
}
