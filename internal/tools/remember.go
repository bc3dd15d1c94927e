package tools

import (
	"context"
	"fmt"
)

// RememberTool stores a long-term note for the calling agent.
type RememberTool struct{}

func NewRememberTool() *RememberTool { return &RememberTool{} }

func (t *RememberTool) Name() string { return "remember" }

func (t *RememberTool) Description() string {
	return "Save a piece of knowledge under a topic so it is available in future tasks. Saving to an existing topic replaces it."
}

func (t *RememberTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Short topic key",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "What to remember",
			},
		},
		"required": []string{"topic", "text"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	mem := MemoryFromContext(ctx)
	if mem == nil {
		return ErrorResult("memory is not available")
	}
	topic := argString(args, "topic")
	if err := mem.Remember(topic, argString(args, "text")); err != nil {
		return ErrorResult("remember failed: " + err.Error()).WithError(err)
	}
	return NewResult(fmt.Sprintf("Saved note %q.", topic))
}

// ForgetTool drops a long-term note that turned out to be wrong.
type ForgetTool struct{}

func NewForgetTool() *ForgetTool { return &ForgetTool{} }

func (t *ForgetTool) Name() string { return "forget" }

func (t *ForgetTool) Description() string {
	return "Delete a saved note by topic when it is outdated or wrong."
}

func (t *ForgetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Topic of the note to delete",
			},
		},
		"required": []string{"topic"},
	}
}

func (t *ForgetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	mem := MemoryFromContext(ctx)
	if mem == nil {
		return ErrorResult("memory is not available")
	}
	topic := argString(args, "topic")
	if err := mem.Forget(topic); err != nil {
		return ErrorResult("forget failed: " + err.Error()).WithError(err)
	}
	return NewResult(fmt.Sprintf("Deleted note %q.", topic))
}
