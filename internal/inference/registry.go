// Package inference holds the model registry and the HTTP client for the
// inference backend. The backend streams raw UTF-8 text chunks over the
// response body, with JSON error frames interleaved on failure; decoding
// that wire format lives in internal/stream.
package inference

import "fmt"

// noThinkTag is appended to the user prompt for models that reason by
// default, suppressing the thinking preamble so output starts at the HTML.
const noThinkTag = " /no_think"

const defaultSystemPrompt = `ONLY USE HTML, CSS AND JAVASCRIPT. If you want to use ICON make sure to import the library first. Try to create the best UI possible by using only HTML, CSS and JAVASCRIPT. Use as much as you can TailwindCSS for the CSS, if you can't do something with TailwindCSS, then use custom CSS (make sure to import <script src="https://cdn.tailwindcss.com"></script> in the head). Also, try to ellaborate as much as you can, to create something unique. ALWAYS GIVE THE RESPONSE INTO A SINGLE HTML FILE`

const improveSystemPrompt = `You are an expert prompt engineer capable of enhancing prompts for generating precise HTML website development requests aimed at building visually stunning, intuitive UI/UX designs and fully functional components. KEEP IT CONCISE AND LESS THAN 256 TOKENS. GIVE ME THE IMPROVED PROMPT ONLY, NOTHING ELSE. DO NOT ENCLOSE THE PROMPT IN DOUBLE QUOTATION MARKS.`

// ModelConfig describes one selectable model.
type ModelConfig struct {
	ID             string
	MaxTokens      int
	MaxInputTokens int
	SystemPrompt   string
	ThinkByDefault bool
}

// codeModels is the selectable code-generation roster, first entry is the
// default.
var codeModels = []ModelConfig{
	{
		ID:             "deepseek-ai/DeepSeek-V3-0324",
		MaxInputTokens: 48_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
	},
	{
		ID:             "deepseek-ai/DeepSeek-R1-0528",
		MaxInputTokens: 48_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
	},
	{
		ID:             "deepseek-ai/DeepSeek-R1-0528-Qwen3-8B",
		MaxInputTokens: 48_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
	},
	{
		ID:             "Qwen/Qwen3-235B-A22B",
		MaxInputTokens: 24_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
		ThinkByDefault: true,
	},
	{
		ID:             "Qwen/Qwen3-30B-A3B",
		MaxInputTokens: 24_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
		ThinkByDefault: true,
	},
	{
		ID:             "Qwen/Qwen3-32B",
		MaxInputTokens: 24_000,
		MaxTokens:      16_000,
		SystemPrompt:   defaultSystemPrompt,
		ThinkByDefault: true,
	},
}

// improveModel handles prompt improvement requests.
var improveModel = ModelConfig{
	ID:             "deepseek-ai/DeepSeek-V3-0324",
	MaxInputTokens: 48_000,
	MaxTokens:      16_000,
	SystemPrompt:   improveSystemPrompt,
}

// ResolveCodeModel returns the config for modelID, falling back to the
// default model when the id is empty or unknown.
func ResolveCodeModel(modelID string) ModelConfig {
	for _, m := range codeModels {
		if m.ID == modelID {
			return m
		}
	}
	return codeModels[0]
}

// ImproveModel returns the prompt-improvement model config.
func ImproveModel() ModelConfig {
	return improveModel
}

// CodeModels returns the selectable code-generation models.
func CodeModels() []ModelConfig {
	out := make([]ModelConfig, len(codeModels))
	copy(out, codeModels)
	return out
}

// ContextTooLongError reports an input that exceeds a model's context
// budget. Callers surface it as a client error and offer a model switch.
type ContextTooLongError struct {
	Model          string
	MaxInputTokens int
}

func (e *ContextTooLongError) Error() string {
	return fmt.Sprintf("Context is too long. %s allow %d max input tokens.", e.Model, e.MaxInputTokens)
}

// CheckTokenBudget validates an approximate input size against the model's
// context window. The estimate is deliberately coarse: characters stand in
// for tokens, which overcounts and therefore fails safe.
func CheckTokenBudget(charsUsed int, cfg ModelConfig) error {
	if charsUsed >= cfg.MaxInputTokens {
		return &ContextTooLongError{Model: cfg.ID, MaxInputTokens: cfg.MaxInputTokens}
	}
	return nil
}
