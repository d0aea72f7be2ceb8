package review

import (
	"fmt"
	"strings"
)

// responseLayout is appended to every review prompt so the free-form
// answer stays parseable by the section scanner.
const responseLayout = `Respond with exactly these labeled sections, in this order:

SUMMARY:
One short paragraph describing the overall quality of the code.

ISSUES:
TYPE: the issue type (naming, complexity, security, duplication, formatting, ...)
SEVERITY: critical, high, medium or low
DESCRIPTION: what is wrong
IMPACT: why it matters
LINES: comma-separated line numbers, relative to the code you were given
SOLUTION: how to fix it
Repeat the TYPE block for each issue. Leave the section empty if there are none.

SUGGESTIONS:
LINE: the line number the change applies to
ORIGINAL: the code as written
SUGGESTED: the improved code
EXPLANATION: why the change helps
Repeat the LINE block for each suggestion.

CLEAN_CODE:
The full cleaned-up version of the code you were given, with every suggestion applied.`

// DetectionSystemPrompt instructs the model to find issues without
// changing behavior.
func DetectionSystemPrompt(language string) string {
	return fmt.Sprintf(`You are a senior %s code reviewer. Identify concrete issues in the code you are given: bugs, unclear naming, needless complexity, duplication, style inconsistencies and risky constructs. Do not invent issues to fill space.

%s`, languageLabel(language), responseLayout)
}

// ImplementationSystemPrompt instructs the model to produce modified code
// for approved issues.
func ImplementationSystemPrompt(language string) string {
	return fmt.Sprintf(`You are a senior %s engineer applying an approved code review. Rewrite the code to resolve the approved issues while preserving behavior. Keep unrelated code untouched.

%s`, languageLabel(language), responseLayout)
}

// ChunkContext identifies a chunk's position so the service can reason
// about partial context.
func ChunkContext(index, total int, chunk Chunk) string {
	return fmt.Sprintf("chunk %d of %d, lines %d-%d", index+1, total, chunk.StartLine+1, chunk.EndLine)
}

// ChunkUserPrompt wraps one chunk's code with its positional context.
func ChunkUserPrompt(chunk Chunk, index, total int, language string) string {
	return fmt.Sprintf(`This is a fragment of a larger file (%s). Line numbers in your answer must be relative to this fragment, starting at 1.

%s`, ChunkContext(index, total, chunk), codeBlock(chunk.Code, language))
}

// WholeFileUserPrompt wraps a complete file.
func WholeFileUserPrompt(code, language string) string {
	return fmt.Sprintf(`Review the following file.

%s`, codeBlock(code, language))
}

const reformatSystemPrompt = `You reformat malformed code-review output. You never add, remove or reinterpret findings; you only rearrange the given text into the requested layout.`

// ReformatPrompt asks the service to restructure its own prior answer.
func ReformatPrompt(rawText, language string) string {
	var b strings.Builder
	b.WriteString("The following code-review output could not be parsed. Reformat it into the expected section layout without changing its content.\n\n")
	b.WriteString(responseLayout)
	if language != "" {
		fmt.Fprintf(&b, "\n\nThe reviewed code is %s.", languageLabel(language))
	}
	b.WriteString("\n\nOutput to reformat:\n\n")
	b.WriteString(rawText)
	return b.String()
}

func codeBlock(code, language string) string {
	return fmt.Sprintf("```%s\n%s\n```", strings.ToLower(strings.TrimSpace(language)), code)
}

func languageLabel(language string) string {
	lang := strings.TrimSpace(language)
	if lang == "" {
		return "software"
	}
	return lang
}
