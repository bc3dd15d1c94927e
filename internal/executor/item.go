package executor

import (
	"fmt"
	"unicode/utf8"
)

// ItemKind is the type of one output item.
type ItemKind int

const (
	ItemText ItemKind = iota
	ItemError
	ItemImage
	ItemHTML
	ItemStatus
)

func (k ItemKind) String() string {
	switch k {
	case ItemText:
		return "text"
	case ItemError:
		return "error"
	case ItemImage:
		return "image"
	case ItemHTML:
		return "html"
	case ItemStatus:
		return "status"
	}
	return fmt.Sprintf("item(%d)", int(k))
}

// Item is one piece of output from a run. Image content is base64 encoded,
// with MIME set (image:png -> "image/png").
type Item struct {
	Kind    ItemKind
	Content string
	MIME    string
}

func textItem(s string) Item   { return Item{Kind: ItemText, Content: truncate(s)} }
func errorItem(s string) Item  { return Item{Kind: ItemError, Content: truncate(s)} }
func statusItem(s string) Item { return Item{Kind: ItemStatus, Content: s} }

// Status item contents.
const (
	StatusDone        = "done"
	StatusIdle        = "idle"
	StatusInterrupted = "interrupted"
	StatusCrashed     = "crashed"
)

// maxItemBytes bounds a single text item.
const maxItemBytes = 16 * 1024

func truncate(s string) string {
	if len(s) <= maxItemBytes {
		return s
	}
	cut := maxItemBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}

// single returns a closed channel holding exactly one item.
func single(it Item) <-chan Item {
	ch := make(chan Item, 1)
	ch <- it
	close(ch)
	return ch
}
