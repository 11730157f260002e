package classifier

import (
	"math"
	"strings"
)

// accentNames maps the CommonAccent label codes to display names.
var accentNames = map[string]string{
	"us":             "American",
	"england":        "British",
	"australia":      "Australian",
	"canada":         "Canadian",
	"indian":         "Indian",
	"ireland":        "Irish",
	"scotland":       "Scottish",
	"newzealand":     "New Zealand",
	"wales":          "Welsh",
	"african":        "African",
	"bermuda":        "Bermudian",
	"hongkong":       "Hong Kong",
	"malaysia":       "Malaysian",
	"philippines":    "Filipino",
	"singapore":      "Singaporean",
	"southatlandtic": "South Atlantic",
}

// AccentName returns the display name for code, or code itself when unknown.
func AccentName(code string) string {
	if name, ok := accentNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}

// Codes lists every known label code.
func Codes() []string {
	out := make([]string, 0, len(accentNames))
	for code := range accentNames {
		out = append(out, code)
	}
	return out
}

// Confidence scales a probability to a percentage with two decimals.
func Confidence(probability float64) float64 {
	return math.Round(probability*100*100) / 100
}
