package cmd

import (
	"github.com/charmbracelet/huh"
)

// SelectOption is one entry of a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

// filterThreshold: type-to-filter only for longer lists.
const filterThreshold = 8

// runForm runs fields as a single group with the key help visible.
func runForm(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

// promptString asks for one line of text. An empty answer returns defaultVal,
// which is shown as the placeholder.
func promptString(title, description, defaultVal string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}
	if err := runForm(inp); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword asks for a secret without echoing it.
func promptPassword(title, description string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if err := runForm(inp); err != nil {
		return "", err
	}
	return value, nil
}

// promptSelect shows a single-choice list with defaultIdx preselected.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(i == defaultIdx)
	}

	sel := huh.NewSelect[T]().Title(title).Options(opts...).Value(&value)
	if len(options) > filterThreshold {
		sel = sel.Filtering(true)
	}
	if err := runForm(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&value)
	if err := runForm(c); err != nil {
		return false, err
	}
	return value, nil
}
