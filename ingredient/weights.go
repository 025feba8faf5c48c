package ingredient

import (
	"strings"

	"cartpilot/lib/textutil"
)

// average weight per piece in grams for produce that recipes count in
// pieces while stores sell by weight. keys are diacritic-folded.
var averageWeights = map[string]float64{
	"paprik":   200, // bell pepper
	"pomidor":  150, // tomato
	"agurk":    200, // cucumber
	"svogun":   150, // onion
	"bulv":     150, // potato
	"mork":     100, // carrot
	"baklazan": 300, // eggplant
	"cukinij":  300, // zucchini
}

// estimateWeight converts a piece count of a named ingredient into grams
// using the average-weight table. reports false for ingredients the table
// does not cover.
func estimateWeight(name string, pieces float64) (float64, bool) {
	folded := textutil.Fold(strings.TrimSpace(name))
	for key, perPiece := range averageWeights {
		if strings.Contains(folded, key) {
			return pieces * perPiece, true
		}
	}
	return 0, false
}
