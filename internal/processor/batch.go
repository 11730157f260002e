package processor

import (
	"context"

	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/types"
)

// ProcessBatch analyzes records one after another. limit <= 0 means all rows.
// onEach, if set, sees every response as soon as it is ready.
func ProcessBatch(ctx context.Context, a Analyzer, records []types.VideoRecord, limit int, log *logger.Logger, onEach func(int, AnalysisResponse)) []AnalysisResponse {
	if log == nil {
		log = logger.New()
	}
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	out := make([]AnalysisResponse, 0, limit)
	for i, rec := range records[:limit] {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("batch interrupted")
			break
		}
		entry := log.WithField("row_id", rec.RowID).WithField("video_url", rec.VideoURL)
		entry.Info("processing batch row")
		resp := ProcessSingle(ctx, a, types.SourceReference{Kind: types.SourceRemote, RawURL: rec.VideoURL})
		out = append(out, resp)
		if onEach != nil {
			onEach(i, resp)
		}
	}
	return out
}
