package review

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultChunkThreshold is the line count above which detection-phase
	// input is split into chunks.
	DefaultChunkThreshold = 100
	// ImplementationChunkThreshold gates chunking for the implementation
	// phase.
	ImplementationChunkThreshold = 500
)

// Chunk is a bounded line-range slice of an oversized input, analyzed
// independently. StartLine is the number of original lines preceding the
// chunk, so a chunk-relative line L maps to original line StartLine+L.
// EndLine is the 1-based last original line the chunk covers.
type Chunk struct {
	ID        string
	Code      string
	StartLine int
	EndLine   int
}

// Lines returns the number of lines the chunk covers.
func (c Chunk) Lines() int {
	return c.EndLine - c.StartLine
}

// boundaryPatterns matches lines that start a logical unit (function or
// class declaration) for languages where that is cheap to detect.
var boundaryPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`^(func |type \w+ (struct|interface)\b)`),
	"python":     regexp.MustCompile(`^(def |class |async def )`),
	"javascript": regexp.MustCompile(`^(export )?((async )?function\b|class )`),
	"typescript": regexp.MustCompile(`^(export )?((async )?function\b|class |interface )`),
	"java":       regexp.MustCompile(`^(public |private |protected )?(final |abstract |static )*(class |interface |enum )`),
	"rust":       regexp.MustCompile(`^(pub )?(fn |struct |enum |impl |trait )`),
}

var languageAliases = map[string]string{
	"golang": "go",
	"py":     "python",
	"js":     "javascript",
	"jsx":    "javascript",
	"ts":     "typescript",
	"tsx":    "typescript",
}

// Chunker splits oversized input into line-bounded chunks, preferring
// logical unit boundaries when the language allows detecting them.
type Chunker struct {
	threshold int
}

func NewChunker(threshold int) *Chunker {
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	return &Chunker{threshold: threshold}
}

// NeedsSplit reports whether the input is large enough to chunk.
func (c *Chunker) NeedsSplit(code string) bool {
	return CountLines(code) > c.threshold
}

// Split divides code into chunks whose line ranges cover every original
// line exactly once, with no gaps. Input at or under the threshold comes
// back as a single chunk; so does input with no safe split point.
func (c *Chunker) Split(code, language string) []Chunk {
	lines := strings.Split(code, "\n")
	total := len(lines)

	if total <= c.threshold {
		return []Chunk{{
			ID:        "chunk-1",
			Code:      code,
			StartLine: 0,
			EndLine:   total,
		}}
	}

	boundaries := boundaryLines(lines, language)

	var chunks []Chunk
	start := 0
	for start < total {
		end := start + c.threshold
		if end >= total {
			end = total
		} else if cut, ok := bestCut(boundaries, start, end, c.threshold); ok {
			end = cut
		}

		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("chunk-%d", len(chunks)+1),
			Code:      strings.Join(lines[start:end], "\n"),
			StartLine: start,
			EndLine:   end,
		})
		start = end
	}

	return chunks
}

// bestCut finds the highest boundary in (start, limit] that still leaves
// the chunk at least half the threshold, so boundary alignment never
// produces degenerate slivers.
func bestCut(boundaries []int, start, limit, threshold int) (int, bool) {
	best := -1
	for _, b := range boundaries {
		if b > start && b <= limit && b-start >= threshold/2 && b > best {
			best = b
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// boundaryLines returns 0-based indices of lines that begin a logical unit.
// Cutting at index b puts line b at the start of the next chunk.
func boundaryLines(lines []string, language string) []int {
	lang := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	pattern, ok := boundaryPatterns[lang]
	if !ok {
		return nil
	}

	var boundaries []int
	for i, line := range lines {
		if pattern.MatchString(line) {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// CountLines counts lines the same way the chunker slices them, so line
// coordinates agree across the pipeline.
func CountLines(code string) int {
	return len(strings.Split(code, "\n"))
}
