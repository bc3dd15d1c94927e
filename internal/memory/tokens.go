package memory

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

const (
	imageTokenCost  = 1100
	toolCallCost    = 75
	charsPerToken   = 4
	tokenCacheSize  = 4096
	defaultEncoding = "cl100k_base"
)

// Counter estimates the token cost of a text.
type Counter interface {
	Count(text string) int
}

// ApproxCounter estimates len/4.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int { return len(text) / charsPerToken }

// TiktokenCounter counts with a BPE encoding and caches results by text.
type TiktokenCounter struct {
	enc   *tiktoken.Tiktoken
	cache *lru.Cache[string, int]
}

// NewTokenCounter loads the named encoding ("" = cl100k_base). When the
// encoding cannot be loaded it returns ApproxCounter and the error.
func NewTokenCounter(encoding string) (Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("memory: tokenizer unavailable, using length estimate", "encoding", encoding, "error", err)
		return ApproxCounter{}, err
	}
	cache, err := lru.New[string, int](tokenCacheSize)
	if err != nil {
		return ApproxCounter{}, err
	}
	return &TiktokenCounter{enc: enc, cache: cache}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if n, ok := c.cache.Get(text); ok {
		return n
	}
	n := len(c.enc.Encode(text, nil, nil))
	c.cache.Add(text, n)
	return n
}
