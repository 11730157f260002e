package aggregator

import (
	"math"
	"sort"

	"accent-analyzer-go/internal/processor"
)

type Insight struct {
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	AccentCounts   map[string]int `json:"accent_counts"`
	FailureKinds   map[string]int `json:"failure_kinds"`
	MeanConfidence float64        `json:"mean_confidence"`
	TopAccent      string         `json:"top_accent,omitempty"`
}

func Aggregate(responses []processor.AnalysisResponse) Insight {
	accents := map[string]int{}
	failures := map[string]int{}
	succeeded := 0
	confSum := 0.0
	for _, r := range responses {
		if r.Error != nil {
			failures[string(r.Error.Kind)]++
			continue
		}
		if r.Confidence == nil {
			continue
		}
		succeeded++
		accents[r.Accent]++
		confSum += *r.Confidence
	}
	ins := Insight{
		Total:        len(responses),
		Succeeded:    succeeded,
		Failed:       len(responses) - succeeded,
		AccentCounts: accents,
		FailureKinds: failures,
	}
	if succeeded > 0 {
		ins.MeanConfidence = math.Round(confSum/float64(succeeded)*100) / 100
	}
	ins.TopAccent = top(accents)
	return ins
}

// top returns the most frequent key; ties go to the alphabetically first.
func top(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := ""
	for _, k := range keys {
		if best == "" || counts[k] > counts[best] {
			best = k
		}
	}
	return best
}
