package match

// DefaultNoSignalPenaltyWeight is the weight (spec.md §4.3) assigned to an
// attribute no enabled layer produced a value for — absence is not
// neutral, so it contributes 0 confidence at this weight rather than being
// dropped from the average.
const DefaultNoSignalPenaltyWeight = 0.1

// Weights maps an attribute name to its contribution weight in the
// combined-confidence computation. Unlisted attributes default to 1.0.
type Weights map[string]float64

func (w Weights) weightOf(field string) float64 {
	if v, ok := w[field]; ok {
		return v
	}
	return 1.0
}

// Combined is the merged per-field view across every layer that produced a
// result for one (component, facility) pair, plus the aggregate confidence
// and dominant match type.
type Combined struct {
	Fields     map[string]Field // field -> winning (highest-confidence, tie-break-resolved) value
	Confidence float64
	MatchType  string // "exact" | "heuristic" | "nlp" | "llm" | "mixed" | "unknown"
}

// CombineResults merges LayerResults per spec.md §4.3: per field, the
// highest confidence wins; ties favour the earlier (more deterministic)
// layer. The combined confidence is a weighted mean over the union of
// fields any layer addressed, plus knownFields the caller expects but no
// layer touched, each penalised at penaltyWeight (defaults to
// DefaultNoSignalPenaltyWeight when zero).
func CombineResults(results []LayerResult, knownFields []string, weights Weights, penaltyWeight float64) Combined {
	if penaltyWeight == 0 {
		penaltyWeight = DefaultNoSignalPenaltyWeight
	}

	winners := map[string]Field{}
	winnerLayer := map[string]Layer{}

	for _, r := range results {
		for field, f := range r.Fields {
			cur, seen := winners[field]
			if !seen || f.Confidence > cur.Confidence {
				winners[field] = f
				winnerLayer[field] = r.Layer
				continue
			}
			if f.Confidence == cur.Confidence && layerOrder[r.Layer] < layerOrder[winnerLayer[field]] {
				winners[field] = f
				winnerLayer[field] = r.Layer
			}
		}
	}

	allFields := map[string]bool{}
	for f := range winners {
		allFields[f] = true
	}
	for _, f := range knownFields {
		allFields[f] = true
	}

	var weightedSum, weightTotal float64
	for field := range allFields {
		w, present := winners[field]
		weight := weights.weightOf(field)
		if !present {
			weight = penaltyWeight
			w = Field{Confidence: 0}
		}
		weightedSum += w.Confidence * weight
		weightTotal += weight
	}

	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Combined{
		Fields:     winners,
		Confidence: confidence,
		MatchType:  dominantMatchType(winners, winnerLayer),
	}
}

// dominantMatchType names the single contributing layer, or "mixed" when
// more than one layer won at least one field non-trivially (spec.md §4.4).
func dominantMatchType(winners map[string]Field, winnerLayer map[string]Layer) string {
	seen := map[Layer]bool{}
	for field, l := range winnerLayer {
		if winners[field].Confidence > 0 {
			seen[l] = true
		}
	}
	if len(seen) == 0 {
		return "unknown"
	}
	if len(seen) == 1 {
		for l := range seen {
			return string(l)
		}
	}
	return "mixed"
}
