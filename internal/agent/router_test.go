package agent

import (
	"context"
	"testing"
)

type namedAgent string

func (a namedAgent) Name() string                                { return string(a) }
func (a namedAgent) Run(context.Context, string) (string, error) { return "", nil }

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Register(StrategyGUI, namedAgent("gui"))

	if _, err := r.Get(StrategyCode); err == nil {
		t.Error("expected error for unregistered strategy")
	}
	if _, ok := r.Other(StrategyGUI); ok {
		t.Error("expected no fallback with only gui registered")
	}

	r.Register(StrategyCode, namedAgent("code"))
	if other, ok := r.Other(StrategyGUI); !ok || other != StrategyCode {
		t.Errorf("expected code fallback, got %s %v", other, ok)
	}
	if other, _ := r.Other(StrategyCode); other != StrategyGUI {
		t.Errorf("expected gui fallback, got %s", other)
	}
	if got := r.List(); len(got) != 2 || got[0] != StrategyCode {
		t.Errorf("expected sorted [code gui], got %v", got)
	}

	r.Remove(StrategyGUI)
	if _, err := r.Get(StrategyGUI); err == nil {
		t.Error("expected error after remove")
	}
}
