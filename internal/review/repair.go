package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/internal/model"
)

// Repairer escalates a failed parse. Tier 1 (Recover) is a maximally
// tolerant re-extraction with no service call; tier 2 (Reformat) asks the
// generative service to rewrite its own prior answer into the expected
// section layout and re-runs tier 1 on the result.
type Repairer struct {
	client llm.Client
}

// NewRepairer creates a Repairer. The client may be nil when only tier 1
// recovery is needed.
func NewRepairer(client llm.Client) *Repairer {
	return &Repairer{client: client}
}

var (
	bulletPattern   = regexp.MustCompile(`^\s*(?:[-*•]\s+|\d+[.)]\s+|(?i:issue)\s+\d+\s*:)`)
	lineRefPattern  = regexp.MustCompile(`(?i)\bline\s*:?\s*(\d+)`)
	fencedPattern   = regexp.MustCompile("(?s)```[^`\\n]*\\n(.*?)```")
	backtickPattern = regexp.MustCompile("`([^`\\n]+)`")
)

// Recover is the tier-1 repair pass. It succeeds only when both a summary
// and clean code could be extracted; on failure the partial result is
// still attached so callers can inspect whatever was recoverable.
func (r *Repairer) Recover(rawText string) ParseResult {
	partial := &model.ParsedReview{
		Summary:     recoverSummary(rawText),
		Suggestions: recoverSuggestions(rawText),
		CleanCode:   recoverCleanCode(rawText),
	}
	assignIDs(nil, partial.Suggestions)

	if partial.Summary == "" {
		return ParseResult{Result: partial, Err: fmt.Errorf("repair: no summary could be recovered")}
	}
	if partial.CleanCode == "" {
		return ParseResult{Result: partial, Err: fmt.Errorf("repair: no clean code could be recovered")}
	}

	return ParseResult{Success: true, Result: partial}
}

// Reformat is the tier-2 repair pass: it re-submits the raw text to the
// generative service with an explicit reformatting instruction, then runs
// the strict parser and tier 1 on the response. Its failure is terminal.
func (r *Repairer) Reformat(ctx context.Context, rawText, language string) ParseResult {
	if r.client == nil {
		return parseFailure("repair: no generative client configured for reformatting")
	}

	resp, err := r.client.Chat(ctx, llm.Request{
		SystemPrompt: reformatSystemPrompt,
		UserPrompt:   ReformatPrompt(rawText, language),
		Temperature:  llm.Temp(0),
	})
	if err != nil {
		return ParseResult{Err: fmt.Errorf("repair: reformat request: %w", err)}
	}

	if res := Parse(resp.Content); res.Success {
		return res
	}

	res := r.Recover(resp.Content)
	if !res.Success {
		slog.WarnContext(ctx, "repair exhausted after reformat", "error", res.Err)
		res.Err = fmt.Errorf("repair exhausted: %w", res.Err)
	}
	return res
}

// recoverSummary takes the marker section when present, otherwise guesses
// the first paragraph of the text.
func recoverSummary(rawText string) string {
	for _, sec := range scanSections(rawText, topLevelMarkers) {
		if sec.name == "summary" {
			if s := strings.TrimSpace(sec.text()); s != "" {
				return s
			}
		}
	}
	return firstParagraph(rawText)
}

func firstParagraph(text string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if trimmed == "" {
		return ""
	}
	for _, para := range strings.Split(trimmed, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "```") {
			continue
		}
		return para
	}
	return ""
}

// recoverCleanCode takes the marker section when present, otherwise the
// last fenced code block in the text.
func recoverCleanCode(rawText string) string {
	for _, sec := range scanSections(rawText, topLevelMarkers) {
		if sec.name == "clean_code" {
			if s := stripFences(sec.text()); s != "" {
				return s
			}
		}
	}

	matches := fencedPattern.FindAllStringSubmatch(rawText, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// recoverSuggestions scans for bulleted, numbered or "issue N:" blocks and
// treats up to two code spans inside each as original/suggested code. A
// block with a single code span proposes no change (original == suggested).
func recoverSuggestions(rawText string) []model.Suggestion {
	blocks := candidateBlocks(rawText)

	var out []model.Suggestion
	for _, block := range blocks {
		spans := codeSpans(block)
		if len(spans) == 0 {
			continue
		}

		sug := model.Suggestion{
			LineNumber:    1,
			OriginalCode:  spans[0],
			SuggestedCode: spans[0],
			Explanation:   explanationText(block),
		}
		if len(spans) > 1 {
			sug.SuggestedCode = spans[1]
		}
		if m := lineRefPattern.FindStringSubmatch(block); m != nil {
			sug.LineNumber = atoi(m[1])
		}
		out = append(out, sug)
	}

	return dedupSuggestions(out)
}

// candidateBlocks splits text into regions starting at bullet/numbered/
// "issue N:" lines. Fenced code never starts or ends a block.
func candidateBlocks(text string) []string {
	var (
		blocks  []string
		current []string
		inBlock bool
		inFence bool
	)

	flush := func() {
		if inBlock && len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if isFenceLine(line) {
			inFence = !inFence
			if inBlock {
				current = append(current, line)
			}
			continue
		}
		if !inFence && bulletPattern.MatchString(line) {
			flush()
			inBlock = true
			current = append(current, line)
			continue
		}
		if inBlock {
			current = append(current, line)
		}
	}
	flush()

	return blocks
}

// codeSpans returns fenced blocks and inline backtick spans in order of
// appearance, at most two.
func codeSpans(block string) []string {
	type span struct {
		pos  int
		code string
	}
	var spans []span

	for _, m := range fencedPattern.FindAllStringSubmatchIndex(block, -1) {
		spans = append(spans, span{pos: m[0], code: strings.TrimSpace(block[m[2]:m[3]])})
	}

	// Inline spans outside fenced regions only.
	stripped := fencedPattern.ReplaceAllStringFunc(block, func(s string) string {
		return strings.Repeat("\x00", len(s))
	})
	for _, m := range backtickPattern.FindAllStringSubmatchIndex(stripped, -1) {
		spans = append(spans, span{pos: m[0], code: strings.TrimSpace(stripped[m[2]:m[3]])})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].pos < spans[j].pos })

	var out []string
	for _, s := range spans {
		if s.code == "" {
			continue
		}
		out = append(out, s.code)
		if len(out) == 2 {
			break
		}
	}
	return out
}

// explanationText is the block with code spans and bullet prefixes removed.
func explanationText(block string) string {
	text := fencedPattern.ReplaceAllString(block, " ")
	text = backtickPattern.ReplaceAllString(text, " ")
	text = bulletPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
