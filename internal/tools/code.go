package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nextlevelbuilder/argus/internal/executor"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// CodeRunner is the execution engine surface the code tools need.
type CodeRunner interface {
	Run(ctx context.Context, language, code string) <-chan executor.Item
	Interrupt() string
	Languages() []string
}

// ExecuteCodeTool runs code through the engine after the client approves it.
type ExecuteCodeTool struct {
	engine   CodeRunner
	approver Approver // nil = no approval needed
	blocks   atomic.Int64
}

func NewExecuteCodeTool(engine CodeRunner, approver Approver) *ExecuteCodeTool {
	return &ExecuteCodeTool{engine: engine, approver: approver}
}

func (t *ExecuteCodeTool) Name() string { return "execute_code" }

func (t *ExecuteCodeTool) Description() string {
	return "Execute code on the local machine and return its output. State persists between python calls. Available languages: " +
		strings.Join(t.engine.Languages(), ", ")
}

func (t *ExecuteCodeTool) Parameters() map[string]interface{} {
	langs := make([]interface{}, 0)
	for _, l := range t.engine.Languages() {
		langs = append(langs, l)
		for _, alias := range executor.Aliases(l) {
			langs = append(langs, alias)
		}
	}
	lang := map[string]interface{}{
		"type":        "string",
		"description": "Language to run the code in",
	}
	if len(langs) > 0 {
		lang["enum"] = langs
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"language": lang,
			"code": map[string]interface{}{
				"type":        "string",
				"description": "The code to execute",
			},
		},
		"required": []string{"language", "code"},
	}
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	language := argString(args, "language")
	code := argString(args, "code")
	if strings.TrimSpace(code) == "" {
		return ErrorResult("code is empty").WithType(protocol.ErrInvalidArguments)
	}

	if t.approver != nil {
		label := fmt.Sprintf("[BLOCK%d]", t.blocks.Add(1)-1)
		ok, err := t.approver.Await(ctx, AgentNameFromContext(ctx), label)
		if err != nil {
			return ErrorResult("permission request failed: " + err.Error()).WithType(protocol.ErrDenied).WithError(err)
		}
		if !ok {
			return ErrorResult("user denied permission to execute this code").WithType(protocol.ErrDenied)
		}
	}

	return collectItems(t.engine.Run(ctx, language, code))
}

// collectItems drains one run into a Result. Error items fail the result;
// the first image becomes the attachment.
func collectItems(items <-chan executor.Item) *Result {
	var (
		out    []string
		failed bool
		res    = &Result{}
	)
	for it := range items {
		switch it.Kind {
		case executor.ItemText:
			out = append(out, it.Content)
		case executor.ItemError:
			failed = true
			out = append(out, it.Content)
		case executor.ItemHTML:
			out = append(out, "[html]\n"+it.Content)
		case executor.ItemImage:
			if res.Image == nil {
				if data, err := base64.StdEncoding.DecodeString(it.Content); err == nil {
					res.Image, res.ImageMIME = data, it.MIME
				}
			}
			out = append(out, fmt.Sprintf("[image %s]", it.MIME))
		case executor.ItemStatus:
			if it.Content == executor.StatusCrashed || it.Content == executor.StatusInterrupted {
				failed = true
				out = append(out, "["+it.Content+"]")
			}
		}
	}

	res.ForLLM = strings.Join(out, "\n")
	if res.ForLLM == "" {
		res.ForLLM = "(no output)"
	}
	if failed {
		res.IsError = true
		res.ErrorType = protocol.ErrExecution
	}
	return res
}

// InterruptCodeTool stops whatever the engine is running.
type InterruptCodeTool struct {
	engine CodeRunner
}

func NewInterruptCodeTool(engine CodeRunner) *InterruptCodeTool {
	return &InterruptCodeTool{engine: engine}
}

func (t *InterruptCodeTool) Name() string { return "interrupt_code" }

func (t *InterruptCodeTool) Description() string {
	return "Interrupt the code that is currently running."
}

func (t *InterruptCodeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *InterruptCodeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return NewResult(t.engine.Interrupt())
}
