package usage

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	log "github.com/nmhq/claude-bridge/internal/logging"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// EstimateTokens approximates the token count of text. It uses the cl100k
// BPE, which is not Anthropic's tokenizer but tracks it closely enough for
// local accounting when a stream ends without usage data. Falls back to a
// bytes/4 heuristic if the tokenizer cannot be loaded.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("usage: tokenizer unavailable, falling back to byte heuristic: %v", err)
			return
		}
		codec = c
	})
	if codec == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}
