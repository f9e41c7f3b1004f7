package schema

import (
	"strings"

	"github.com/rpattn/opsdash/internal/domain"
)

// DefaultDetectionThreshold is the minimum share of schema fields that must
// appear among the headers for a table type to be detected.
const DefaultDetectionThreshold = 0.5

// Score returns the share of the schema's fields present in headers.
func Score(headers []string, s domain.Schema) float64 {
	if len(s.Fields) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if h = strings.TrimSpace(h); h != "" {
			present[h] = struct{}{}
		}
	}

	matched := 0
	for _, f := range s.Fields {
		if fieldPresent(f, present) {
			matched++
		}
	}
	return float64(matched) / float64(len(s.Fields))
}

func fieldPresent(f domain.FieldDefinition, present map[string]struct{}) bool {
	candidates := append([]string{f.Key, f.Label}, f.Tags...)
	for _, c := range candidates {
		if _, ok := present[strings.TrimSpace(c)]; ok {
			return true
		}
	}
	return false
}

// Detect picks the table type whose schema best matches headers. Scores below
// threshold never match; equal scores keep declaration order.
func Detect(headers []string, schemas []domain.Schema, threshold float64) (domain.TableType, float64, bool) {
	var (
		best      domain.TableType
		bestScore float64
		found     bool
	)
	for _, s := range schemas {
		score := Score(headers, s)
		if score < threshold {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = s.Table, score, true
		}
	}
	return best, bestScore, found
}
