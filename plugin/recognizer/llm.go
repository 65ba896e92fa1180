package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// ModelConfig holds the remote-model backend configuration.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ModelBackend is the remote-model-backed fallback for locales the grammar
// parser does not cover. It declares the wildcard locale, so the registry
// hands it any locale nothing else claims. Every network or parse failure is
// reported as "no candidates"; recognition failure is a normal outcome here,
// never a fault.
type ModelBackend struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewModelBackend(cfg ModelConfig, logger *slog.Logger) *ModelBackend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelBackend{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

func (b *ModelBackend) Name() string {
	return "model"
}

func (b *ModelBackend) Locales() []string {
	return []string{"*"}
}

// modelResponse is the intermediate JSON structure for model output.
type modelResponse struct {
	MatchedText    string `json:"matched_text"`
	DateTime       string `json:"datetime"` // Format: YYYY-MM-DD HH:mm:ss
	HasDate        bool   `json:"has_date"`
	HasTime        bool   `json:"has_time"`
	RecurrenceUnit string `json:"recurrence_unit"`
	RecurrenceSize int    `json:"recurrence_size"`
}

func (b *ModelBackend) Recognize(ctx context.Context, text string, ref time.Time) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	systemPrompt := fmt.Sprintf(`You are a reminder time extractor. Find the single date/time phrase in the user's text and resolve it into a strict JSON format.

Current Time: %s
Timezone: %s

Output Schema (JSON Only):
{
  "matched_text": "the exact date/time phrase copied verbatim from the input, or empty string if none",
  "datetime": "YYYY-MM-DD HH:mm:ss",
  "has_date": boolean,
  "has_time": boolean,
  "recurrence_unit": "day|week|month|year or empty string",
  "recurrence_size": int
}

Rules:
1. Resolve 'datetime' relative to Current Time in the given Timezone.
2. Set 'has_date' false when the phrase names only a clock time, and 'has_time' false when it names only a date. Use 00:00:00 when no time is given.
3. 'recurrence_size' is 1 for "every day", 2 for "every 2 days". Use 0 and an empty unit for one-shot reminders.
4. If the text contains no date/time phrase at all, return empty 'matched_text'.`,
		ref.Format("2006-01-02 15:04:05"), ref.Location().String())

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		b.logger.Warn("model recognition request failed", "error", err)
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		b.logger.Warn("model recognition returned no choices")
		return nil, nil
	}

	// Clean code blocks if present
	jsonStr := strings.TrimSpace(resp.Choices[0].Message.Content)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var parsed modelResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonStr)), &parsed); err != nil {
		b.logger.Warn("model recognition response was not valid JSON", "error", err)
		return nil, nil
	}
	if parsed.MatchedText == "" {
		return nil, nil
	}

	start, end := locateSpan(text, parsed.MatchedText)
	if start < 0 {
		b.logger.Warn("model matched text not found in input", "matched", parsed.MatchedText)
		return nil, nil
	}

	value, ok := renderModelValue(parsed, ref)
	if !ok {
		b.logger.Warn("model returned unparseable datetime", "datetime", parsed.DateTime)
		return nil, nil
	}

	c := Candidate{
		Text:  text[start:end],
		Start: start,
		Value: value,
	}
	if parsed.RecurrenceUnit != "" {
		c.RecurrenceUnit = strings.ToLower(parsed.RecurrenceUnit)
		c.RecurrenceSize = parsed.RecurrenceSize
	}
	return []Candidate{c}, nil
}

// renderModelValue reduces the model's full datetime to the shape the phrase
// actually carried, so the anchoring rules apply the same way they do for
// grammar candidates.
func renderModelValue(parsed modelResponse, ref time.Time) (string, bool) {
	t, err := time.ParseInLocation(ValueDateTimeLayout, parsed.DateTime, ref.Location())
	if err != nil {
		return "", false
	}
	switch {
	case parsed.HasDate && parsed.HasTime:
		return t.Format(ValueDateTimeLayout), true
	case parsed.HasDate:
		return t.Format(ValueDateLayout), true
	case parsed.HasTime:
		return t.Format(ValueTimeLayout), true
	default:
		return t.Format(ValueDateTimeLayout), true
	}
}

// locateSpan finds substr in s and returns byte offsets valid for slicing s.
// An exact match wins; otherwise a rune window the length of substr is folded
// against s, so case folding that changes byte widths cannot shift the span.
func locateSpan(s, substr string) (int, int) {
	if i := strings.Index(s, substr); i >= 0 {
		return i, i + len(substr)
	}
	n := utf8.RuneCountInString(substr)
	if n == 0 {
		return -1, -1
	}
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	for i := 0; i+n < len(offsets); i++ {
		if strings.EqualFold(s[offsets[i]:offsets[i+n]], substr) {
			return offsets[i], offsets[i+n]
		}
	}
	return -1, -1
}
