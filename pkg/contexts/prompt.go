package contexts

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/models"
)

// promptMaxChars bounds the prompt body so one slow key cannot blow the
// model's context window.
const promptMaxChars = 8000

// buildPromptBody assembles the shared prompt body: prior summary
// header plus enumerated records, capped at promptMaxChars. At least
// one record always survives, truncated if necessary.
func buildPromptBody(key, prior string, items []record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You maintain a rolling context summary for %q.\n\n", key)

	if prior != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}

	b.WriteString("Recent items:\n")
	for i, item := range items {
		line := fmt.Sprintf("%d. [%s] %s\n", i+1, item.CollectedAt.UTC().Format(time.RFC3339), oneLine(item.Content))
		if b.Len()+len(line) > promptMaxChars {
			if i == 0 {
				room := promptMaxChars - b.Len()
				if room > 0 {
					b.WriteString(line[:room])
				}
			}
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func jsonPrompt(body string) string {
	return body + "\nRespond with JSON: {\"summary_short\": \"<=128 chars\", \"summary_long\": \"...\", \"key_points\": [\"...\"]}."
}

func textPrompt(body string) string {
	return body + "\nWrite an updated summary in plain prose, two to four sentences."
}

// deriveShort extracts a short summary from free-form model output: the
// first non-empty line, capped at the envelope limit.
func deriveShort(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return models.TruncateSummary(line)
		}
	}
	return models.TruncateSummary(strings.TrimSpace(text))
}

// minimalFallback is the placeholder context emitted when both AI modes
// fail. The key stays visible in UIs even without a real summary.
func minimalFallback(key string, at time.Time) ai.Summary {
	text := fmt.Sprintf("%s — last updated at %s", key, at.UTC().Format(time.RFC3339))
	return ai.Summary{Short: models.TruncateSummary(text), Long: text}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
