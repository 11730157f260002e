package dataset

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"accent-analyzer-go/internal/aggregator"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/processor"
	"accent-analyzer-go/internal/types"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultsHeader = []interface{}{"Row", "Video URL", "Speaker", "Accent", "Code", "Confidence", "Error Kind", "Failed Stage", "Message", "Duration (ms)"}

// WriteReport saves batch results and their summary as a workbook. records
// and responses are matched by position.
func WriteReport(path string, records []types.VideoRecord, responses []processor.AnalysisResponse, ins aggregator.Insight) error {
	log := logger.New().WithField("component", "dataset.report").WithField("path", path)
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, resultsSheet, 1, resultsHeader); err != nil {
		return err
	}
	for i, resp := range responses {
		var rec types.VideoRecord
		if i < len(records) {
			rec = records[i]
		}
		row := []interface{}{rec.RowID, rec.VideoURL, rec.Speaker, resp.Accent, resp.Code, nil, "", "", "", resp.DurationMs}
		if resp.Confidence != nil {
			row[5] = *resp.Confidence
		}
		if resp.Error != nil {
			row[6] = string(resp.Error.Kind)
			row[7] = resp.Error.Stage
			row[8] = resp.Error.Message
		}
		if err := setRow(f, resultsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Total", ins.Total},
		{"Succeeded", ins.Succeeded},
		{"Failed", ins.Failed},
		{"Mean Confidence", ins.MeanConfidence},
		{"Top Accent", ins.TopAccent},
		{},
		{"Accent", "Count"},
	}
	for _, k := range sortedKeys(ins.AccentCounts) {
		summary = append(summary, []interface{}{k, ins.AccentCounts[k]})
	}
	summary = append(summary, []interface{}{}, []interface{}{"Failure Kind", "Count"})
	for _, k := range sortedKeys(ins.FailureKinds) {
		summary = append(summary, []interface{}{k, ins.FailureKinds[k]})
	}
	for i, row := range summary {
		if len(row) == 0 {
			continue
		}
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		log.WithError(err).Error("save failed")
		return fmt.Errorf("save report: %w", err)
	}
	log.WithField("rows", len(responses)).Info("report written")
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
