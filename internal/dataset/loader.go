package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/types"
)

// Load reads video URLs from the first sheet, detecting columns by header.
func Load(path string) ([]types.VideoRecord, error) {
	log := logger.New().WithField("component", "dataset.loader").WithField("path", path)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	urlIdx, idIdx, speakerIdx := -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "url") || strings.Contains(l, "video") || strings.Contains(l, "link"):
			if urlIdx == -1 {
				urlIdx = i
			}
		case strings.Contains(l, "speaker") || strings.Contains(l, "name"):
			if speakerIdx == -1 {
				speakerIdx = i
			}
		case l == "id" || strings.Contains(l, "row") || strings.HasSuffix(l, " id"):
			if idIdx == -1 {
				idIdx = i
			}
		}
	}
	// fallback: first column holding a url
	if urlIdx == -1 && len(rows) > 1 {
		for i, cell := range rows[1] {
			if looksLikeURL(cell) {
				urlIdx = i
				break
			}
		}
	}
	if urlIdx == -1 {
		return nil, fmt.Errorf("no video url column found")
	}
	log.WithFields(map[string]interface{}{
		"urlIdx":     urlIdx,
		"idIdx":      idIdx,
		"speakerIdx": speakerIdx,
	}).Debug("detected column indices")

	var out []types.VideoRecord
	skipped := 0
	for i, r := range rows {
		if i == 0 {
			continue
		}
		rec := types.VideoRecord{RowID: strconv.Itoa(i + 1)}
		if idIdx >= 0 && idIdx < len(r) && strings.TrimSpace(r[idIdx]) != "" {
			rec.RowID = strings.TrimSpace(r[idIdx])
		}
		if urlIdx < len(r) {
			rec.VideoURL = strings.TrimSpace(r[urlIdx])
		}
		if speakerIdx >= 0 && speakerIdx < len(r) {
			rec.Speaker = strings.TrimSpace(r[speakerIdx])
		}
		if !looksLikeURL(rec.VideoURL) {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	log.WithField("records", len(out)).WithField("skipped", skipped).Info("dataset loaded")
	return out, nil
}

func looksLikeURL(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
