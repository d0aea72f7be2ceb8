package review

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"reviewloop.app/reviewd/internal/model"
)

// ParseResult is the transient outcome of one parse attempt. Only the
// contained Result or Err is ever copied into a review record.
type ParseResult struct {
	Success bool
	Result  *model.ParsedReview
	Err     error
}

func parseFailure(format string, args ...any) ParseResult {
	return ParseResult{Err: fmt.Errorf(format, args...)}
}

// markerDef maps one accepted spelling of a section label to its
// canonical name. Spellings are matched case-insensitively at the start
// of a line, with an optional trailing colon.
type markerDef struct {
	keyword   string
	canonical string
}

// newMarkerSet orders spellings longest-first so "clean code" wins over
// any shorter overlapping keyword.
func newMarkerSet(spellings map[string]string) []markerDef {
	defs := make([]markerDef, 0, len(spellings))
	for kw, name := range spellings {
		defs = append(defs, markerDef{keyword: kw, canonical: name})
	}
	sort.Slice(defs, func(i, j int) bool {
		if len(defs[i].keyword) != len(defs[j].keyword) {
			return len(defs[i].keyword) > len(defs[j].keyword)
		}
		return defs[i].keyword < defs[j].keyword
	})
	return defs
}

var topLevelMarkers = newMarkerSet(map[string]string{
	"summary":      "summary",
	"issues":       "issues",
	"suggestions":  "suggestions",
	"clean_code":   "clean_code",
	"clean code":   "clean_code",
	"cleancode":    "clean_code",
	"clean-code":   "clean_code",
	"cleaned code": "clean_code",
})

var suggestionMarkers = newMarkerSet(map[string]string{
	"line":        "line",
	"original":    "original",
	"suggested":   "suggested",
	"explanation": "explanation",
})

var issueMarkers = newMarkerSet(map[string]string{
	"type":              "type",
	"severity":          "severity",
	"description":       "description",
	"impact":            "impact",
	"lines":             "lines",
	"line numbers":      "lines",
	"solution":          "solution",
	"proposed_solution": "solution",
	"proposed solution": "solution",
})

// section is one marker-delimited region of the generated text. The
// leading region before any marker carries the empty name.
type section struct {
	name    string
	content []string
}

func (s section) text() string {
	return strings.Join(s.content, "\n")
}

// scanSections tokenizes text into marker-delimited sections. A section's
// content is everything up to the next recognized marker or end of text.
// Markers are recognized only outside fenced code spans, so a "line:"
// inside a code sample stays content.
func scanSections(text string, markers []markerDef) []section {
	sections := []section{{name: ""}}
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		if isFenceLine(line) {
			inFence = !inFence
			last := &sections[len(sections)-1]
			last.content = append(last.content, line)
			continue
		}

		if !inFence {
			if name, rest, ok := matchMarker(line, markers); ok {
				sec := section{name: name}
				if rest != "" {
					sec.content = append(sec.content, rest)
				}
				sections = append(sections, sec)
				continue
			}
		}

		last := &sections[len(sections)-1]
		last.content = append(last.content, line)
	}

	return sections
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// matchMarker reports whether the line is a section marker. The label may
// be prefixed with markdown header/bold punctuation and must be followed
// by a colon or end of line; content after the colon belongs to the
// section.
func matchMarker(line string, markers []markerDef) (name, rest string, ok bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#*"))
	lower := strings.ToLower(trimmed)

	for _, def := range markers {
		if !strings.HasPrefix(lower, def.keyword) {
			continue
		}
		after := strings.TrimSpace(trimmed[len(def.keyword):])
		after = strings.TrimSuffix(after, "**")
		if after == "" {
			return def.canonical, "", true
		}
		if strings.HasPrefix(after, ":") {
			return def.canonical, strings.TrimSpace(after[1:]), true
		}
	}
	return "", "", false
}

// Parse extracts a typed result from one block of generated text. It
// fails when the summary or clean-code section is missing or empty:
// downstream consumers assume clean code is always present, so a response
// with suggestions but no clean-code block is not a success.
func Parse(rawText string) ParseResult {
	var (
		summary, cleanCode     string
		haveSummary, haveClean bool
		issues                 []model.Issue
		suggestions            []model.Suggestion
	)

	for _, sec := range scanSections(rawText, topLevelMarkers) {
		switch sec.name {
		case "summary":
			if !haveSummary {
				summary = strings.TrimSpace(sec.text())
				haveSummary = true
			}
		case "clean_code":
			if !haveClean {
				cleanCode = stripFences(sec.text())
				haveClean = true
			}
		case "issues":
			issues = append(issues, parseIssueBlocks(sec.text())...)
		case "suggestions":
			suggestions = append(suggestions, parseSuggestionBlocks(sec.text())...)
		}
	}

	if !haveSummary {
		return parseFailure("summary marker not found")
	}
	if summary == "" {
		return parseFailure("summary section is empty")
	}
	if !haveClean {
		return parseFailure("clean code marker not found")
	}
	if cleanCode == "" {
		return parseFailure("clean code section is empty")
	}

	suggestions = dedupSuggestions(suggestions)
	assignIDs(issues, suggestions)

	return ParseResult{
		Success: true,
		Result: &model.ParsedReview{
			Summary:     summary,
			Issues:      issues,
			Suggestions: suggestions,
			CleanCode:   cleanCode,
		},
	}
}

var leadingIntPattern = regexp.MustCompile(`^(\d+)`)
var intPattern = regexp.MustCompile(`\d+`)

// parseSuggestionBlocks extracts suggestions from the suggestions section.
// Each block is introduced by a LINE marker; a block missing either
// ORIGINAL or SUGGESTED is dropped, not defaulted.
func parseSuggestionBlocks(content string) []model.Suggestion {
	var (
		out []model.Suggestion
		cur *model.Suggestion
	)

	flush := func() {
		if cur != nil && cur.OriginalCode != "" && cur.SuggestedCode != "" {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, sec := range scanSections(content, suggestionMarkers) {
		switch sec.name {
		case "line":
			flush()
			m := leadingIntPattern.FindString(strings.TrimSpace(sec.text()))
			if m == "" {
				continue
			}
			cur = &model.Suggestion{LineNumber: atoi(m)}
		case "original":
			if cur != nil {
				cur.OriginalCode = stripFences(sec.text())
			}
		case "suggested":
			if cur != nil {
				cur.SuggestedCode = stripFences(sec.text())
			}
		case "explanation":
			if cur != nil {
				cur.Explanation = strings.TrimSpace(sec.text())
			}
		}
	}
	flush()

	return out
}

// parseIssueBlocks extracts issues from the issues section. Blocks are
// introduced by a TYPE marker; a block without a type or description is
// dropped.
func parseIssueBlocks(content string) []model.Issue {
	var (
		out []model.Issue
		cur *model.Issue
	)

	flush := func() {
		if cur != nil && cur.Type != "" && cur.Description != "" {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, sec := range scanSections(content, issueMarkers) {
		switch sec.name {
		case "type":
			flush()
			cur = &model.Issue{
				Type:     strings.ToLower(strings.TrimSpace(sec.text())),
				Severity: model.SeverityMedium,
			}
		case "severity":
			if cur != nil {
				cur.Severity = parseSeverity(sec.text())
			}
		case "description":
			if cur != nil {
				cur.Description = strings.TrimSpace(sec.text())
			}
		case "impact":
			if cur != nil {
				cur.Impact = strings.TrimSpace(sec.text())
			}
		case "lines":
			if cur != nil {
				for _, m := range intPattern.FindAllString(sec.text(), -1) {
					cur.LineNumbers = append(cur.LineNumbers, atoi(m))
				}
			}
		case "solution":
			if cur != nil {
				cur.ProposedSolution = strings.TrimSpace(sec.text())
			}
		}
	}
	flush()

	return out
}

func parseSeverity(s string) model.Severity {
	switch model.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case model.SeverityCritical:
		return model.SeverityCritical
	case model.SeverityHigh:
		return model.SeverityHigh
	case model.SeverityLow:
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}

// dedupSuggestions keeps the first occurrence of each exact
// (line, original, suggested) triple.
func dedupSuggestions(in []model.Suggestion) []model.Suggestion {
	seen := make(map[string]bool, len(in))
	var out []model.Suggestion
	for _, s := range in {
		key := fmt.Sprintf("%d\x00%s\x00%s", s.LineNumber, s.OriginalCode, s.SuggestedCode)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func assignIDs(issues []model.Issue, suggestions []model.Suggestion) {
	for i := range issues {
		issues[i].ID = fmt.Sprintf("issue-%d", i+1)
	}
	for i := range suggestions {
		suggestions[i].ID = fmt.Sprintf("suggestion-%d", i+1)
	}
}

// stripFences removes one surrounding pair of ``` fences, then trims the
// result. Content without fences is just trimmed.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

// atoi converts digits already validated by a regexp match.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
