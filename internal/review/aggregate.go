package review

import (
	"fmt"
	"math"

	"reviewloop.app/reviewd/internal/model"
)

// AggregatedResult is the file-relative merge of all per-chunk results.
type AggregatedResult struct {
	Summary      string
	Issues       []model.Issue
	Suggestions  []model.Suggestion
	CleanCode    string
	Score        model.QualityScore
	TotalLines   int
	ChunkCount   int
	FailedChunks int
}

// Aggregate merges per-chunk parsed results into one file-relative result.
// Issues are deduplicated by exact (type, description), keeping the first
// occurrence in chunk order, and all line numbers are offset into the
// original file's coordinate space. A remapped line outside the original
// input is a chunk-offset bug and fails the whole aggregation.
func Aggregate(results map[string]*ChunkResult, chunks []Chunk, originalCode string) (*AggregatedResult, error) {
	totalLines := CountLines(originalCode)

	var (
		issues      []model.Issue
		suggestions []model.Suggestion
		cleanParts  []string
		failed      int
		seenIssues  = make(map[string]bool)
	)

	for _, chunk := range chunks {
		res, ok := results[chunk.ID]
		if !ok || res.Err != nil || res.Parsed == nil {
			failed++
			continue
		}

		for _, issue := range offsetIssues(res.Parsed.Issues, chunk) {
			for _, ln := range issue.LineNumbers {
				if ln < 1 || ln > totalLines {
					return nil, fmt.Errorf("chunk %s: remapped line %d outside [1,%d]", chunk.ID, ln, totalLines)
				}
			}
			key := issue.Type + "\x00" + issue.Description
			if seenIssues[key] {
				continue
			}
			seenIssues[key] = true
			issues = append(issues, issue)
		}

		for _, sug := range res.Parsed.Suggestions {
			if sug.LineNumber < 1 || sug.LineNumber > chunk.Lines() {
				continue
			}
			sug.LineNumber += chunk.StartLine
			if sug.LineNumber > totalLines {
				return nil, fmt.Errorf("chunk %s: remapped suggestion line %d outside [1,%d]", chunk.ID, sug.LineNumber, totalLines)
			}
			suggestions = append(suggestions, sug)
		}

		if res.Parsed.CleanCode != "" {
			cleanParts = append(cleanParts, res.Parsed.CleanCode)
		}
	}

	suggestions = dedupSuggestions(suggestions)
	assignIDs(issues, suggestions)

	agg := &AggregatedResult{
		Issues:       issues,
		Suggestions:  suggestions,
		Score:        ComputeQualityScore(issues, totalLines),
		TotalLines:   totalLines,
		ChunkCount:   len(chunks),
		FailedChunks: failed,
	}
	agg.Summary = aggregateSummary(agg)
	agg.CleanCode = joinCleanParts(cleanParts)

	return agg, nil
}

// offsetIssues returns copies of the issues with line numbers remapped by
// the chunk's start offset. Chunk-relative references outside the chunk
// itself are model noise and dropped, never clamped into range.
func offsetIssues(issues []model.Issue, chunk Chunk) []model.Issue {
	out := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		remapped := issue
		remapped.LineNumbers = nil
		for _, ln := range issue.LineNumbers {
			if ln < 1 || ln > chunk.Lines() {
				continue
			}
			remapped.LineNumbers = append(remapped.LineNumbers, ln+chunk.StartLine)
		}
		out = append(out, remapped)
	}
	return out
}

func aggregateSummary(agg *AggregatedResult) string {
	s := fmt.Sprintf("Reviewed %d lines in %d chunks: %d issues, %d suggestions.",
		agg.TotalLines, agg.ChunkCount, len(agg.Issues), len(agg.Suggestions))
	if agg.FailedChunks > 0 {
		s += fmt.Sprintf(" %d chunks contributed no result.", agg.FailedChunks)
	}
	return s
}

func joinCleanParts(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	joined := parts[0]
	for _, p := range parts[1:] {
		joined += "\n" + p
	}
	return joined
}

var severityPenalty = map[model.Severity]int{
	model.SeverityCritical: 15,
	model.SeverityHigh:     8,
	model.SeverityMedium:   3,
	model.SeverityLow:      1,
}

// categoryTypes maps each score category to the issue types that count
// against it.
var categoryTypes = map[string]map[string]bool{
	"readability": {
		"naming": true, "readability": true, "commenting": true, "formatting": true,
	},
	"maintainability": {
		"complexity": true, "maintainability": true, "duplication": true,
		"coupling": true, "error-handling": true,
	},
	"simplicity": {
		"simplicity": true, "over-engineering": true, "abstraction": true, "redundancy": true,
	},
	"consistency": {
		"consistency": true, "convention": true, "style": true, "formatting": true,
	},
}

// ComputeQualityScore derives the heuristic quality score: start at 100,
// subtract per-severity penalties, add a size adjustment so larger files
// are not over-penalized for accumulating findings, clamp to [0,100].
func ComputeQualityScore(issues []model.Issue, totalLines int) model.QualityScore {
	penalty := 0
	catCounts := make(map[string]int, len(categoryTypes))

	for _, issue := range issues {
		p, ok := severityPenalty[issue.Severity]
		if !ok {
			p = severityPenalty[model.SeverityMedium]
		}
		penalty += p

		for cat, types := range categoryTypes {
			if types[issue.Type] {
				catCounts[cat]++
			}
		}
	}

	adjust := 2 * math.Log10(math.Max(float64(totalLines), 10))
	overall := clampScore(int(math.Round(100 - float64(penalty) + adjust)))

	return model.QualityScore{
		Overall: overall,
		Categories: model.CategoryScores{
			Readability:     clampScore(overall - 5*catCounts["readability"]),
			Maintainability: clampScore(overall - 5*catCounts["maintainability"]),
			Simplicity:      clampScore(overall - 5*catCounts["simplicity"]),
			Consistency:     clampScore(overall - 5*catCounts["consistency"]),
		},
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
