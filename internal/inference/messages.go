package inference

import (
	"fmt"
	"strings"
)

// Message is one chat turn sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CodeRequest carries everything a code-generation turn depends on.
type CodeRequest struct {
	Prompt         string
	PreviousPrompt string
	HTML           string
	Colors         []string
	ModelID        string
}

// InputChars is the approximate context size of the request, measured in
// characters.
func (r CodeRequest) InputChars() int {
	return len(r.Prompt) + len(r.PreviousPrompt) + len(r.HTML)
}

// BuildCodeMessages assembles the chat history for a generation turn.
// Order matters: the model sees the prior request, then the current document
// as its own previous answer, then styling constraints, then the new ask.
func BuildCodeMessages(cfg ModelConfig, req CodeRequest) []Message {
	messages := []Message{{Role: "system", Content: cfg.SystemPrompt}}

	if req.PreviousPrompt != "" {
		messages = append(messages, Message{Role: "user", Content: req.PreviousPrompt})
	}
	if req.HTML != "" {
		messages = append(messages, Message{
			Role:    "assistant",
			Content: fmt.Sprintf("The current code is: %s.", req.HTML),
		})
	}
	if len(req.Colors) > 0 {
		messages = append(messages, Message{
			Role:    "user",
			Content: "Use the following color palette in your UI design: " + strings.Join(req.Colors, ", "),
		})
	}

	prompt := req.Prompt
	if cfg.ThinkByDefault {
		prompt += noThinkTag
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

// BuildImproveMessages assembles the two-turn exchange for prompt
// improvement.
func BuildImproveMessages(cfg ModelConfig, prompt string) []Message {
	return []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: prompt},
	}
}
