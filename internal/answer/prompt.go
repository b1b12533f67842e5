package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AmityCo/answercore/internal/fetchcache"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/pkg/types"
)

// maxContextDocs caps how many retrieved documents are rendered into the
// user prompt.
const maxContextDocs = 5

// questionPlaceholder is substituted in affirmation prompt templates.
const questionPlaceholder = "{question}"

// transcriptPlaceholder is substituted in validator prompt templates.
const transcriptPlaceholder = "{transcript}"

// historyPlaceholder is substituted in validator prompt templates.
const historyPlaceholder = "{chat_history}"

// SystemPrompt resolves the localisation's system prompt through the fetch
// cache. When a format-text prompt is configured its content is appended and
// the second return reports that the sectioned output envelope is in play.
func SystemPrompt(ctx context.Context, fetcher *fetchcache.Fetcher, loc orgconfig.Localization) (string, bool, error) {
	if loc.SystemPromptURL == "" {
		return "", false, fmt.Errorf("%w: localisation %q has no system prompt", ErrUpstreamUnavailable, loc.Language)
	}
	body, err := fetcher.Fetch(ctx, loc.SystemPromptURL)
	if err != nil {
		return "", false, fmt.Errorf("%w: system prompt: %v", ErrUpstreamUnavailable, err)
	}
	prompt := strings.TrimSpace(string(body))

	if loc.GeneratorFormatTextPromptURL == "" {
		return prompt, false, nil
	}
	format, err := fetcher.Fetch(ctx, loc.GeneratorFormatTextPromptURL)
	if err != nil {
		return "", false, fmt.Errorf("%w: format prompt: %v", ErrUpstreamUnavailable, err)
	}
	return prompt + "\n\n" + strings.TrimSpace(string(format)), true, nil
}

// QuestionBlock renders the question portion of the user turn. When the
// localisation configures an affirmation template it is fetched and the
// corrected question substituted in; otherwise, or when the template cannot
// be fetched, a plain Question: line is used.
func QuestionBlock(ctx context.Context, fetcher *fetchcache.Fetcher, loc orgconfig.Localization, question string) string {
	question = strings.TrimSpace(question)
	plain := "Question: " + question
	if loc.AffirmationPromptURL == "" {
		return plain
	}
	body, err := fetcher.Fetch(ctx, loc.AffirmationPromptURL)
	if err != nil {
		slog.Warn("affirmation template unavailable, using plain question",
			"url", loc.AffirmationPromptURL, "error", err)
		return plain
	}
	return Affirmation(strings.TrimSpace(string(body)), question)
}

// UserPrompt folds the chat history, the retrieved documents, and the
// rendered question block into the single user turn sent to the generator.
func UserPrompt(question string, docs []types.KMHit, history []types.Message) string {
	var b strings.Builder

	if h := FoldHistory(history); h != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(h)
		b.WriteString("\n\n")
	}

	if len(docs) > 0 {
		b.WriteString("Context documents:\n")
		n := len(docs)
		if n > maxContextDocs {
			n = maxContextDocs
		}
		for i := 0; i < n; i++ {
			doc := docs[i].Document
			id := doc.PublicID
			if id == "" {
				id = doc.ID
			}
			fmt.Fprintf(&b, "[%d] (doc: %s)\n%s\n\n", i+1, id, strings.TrimSpace(doc.Content))
		}
	}

	b.WriteString(question)
	return b.String()
}

// FoldHistory renders chat turns as User:/Assistant: lines. Turns with other
// roles or empty content are skipped.
func FoldHistory(history []types.Message) string {
	var lines []string
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case types.RoleUser:
			lines = append(lines, "User: "+content)
		case types.RoleAssistant:
			lines = append(lines, "Assistant: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

// Affirmation fills the affirmation template with the user's question.
func Affirmation(template, question string) string {
	return strings.ReplaceAll(template, questionPlaceholder, question)
}

// ValidatorPrompts resolves the validator's two prompt templates and fills
// the transcript template's placeholders.
func ValidatorPrompts(ctx context.Context, fetcher *fetchcache.Fetcher, loc orgconfig.Localization, transcript string, history []types.Message) (system, prompt string, err error) {
	if loc.ValidatorSystemPromptTemplateURL != "" {
		body, err := fetcher.Fetch(ctx, loc.ValidatorSystemPromptTemplateURL)
		if err != nil {
			return "", "", fmt.Errorf("validator system template: %w", err)
		}
		system = strings.TrimSpace(string(body))
	}

	prompt = transcript
	if loc.ValidatorTranscriptPromptTemplateURL != "" {
		body, err := fetcher.Fetch(ctx, loc.ValidatorTranscriptPromptTemplateURL)
		if err != nil {
			return "", "", fmt.Errorf("validator transcript template: %w", err)
		}
		prompt = strings.ReplaceAll(string(body), transcriptPlaceholder, transcript)
		prompt = strings.ReplaceAll(prompt, historyPlaceholder, FoldHistory(history))
	}
	return system, prompt, nil
}
