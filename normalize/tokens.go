package normalize

import (
	"unicode/utf8"

	"github.com/ferro-labs/semcache/providers"
)

// TokenCounter counts the tokens of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

// Count calls f(text).
func (f TokenCounterFunc) Count(text string) int { return f(text) }

// ApproxCounter estimates roughly four characters per token.
var ApproxCounter TokenCounter = TokenCounterFunc(func(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
})

// Per-message and per-reply overheads of the chat prompt format.
const (
	tokensPerMessage = 3
	tokensPerName    = 1
	tokensPerReply   = 3
)

// EstimateChat returns the prompt token estimate of msgs: three tokens per
// message, the count of each present field (role, content, name,
// tool_call_id), one more per name, and three for the reply primer.
func EstimateChat(msgs []providers.Message, counter TokenCounter) int {
	total := 0
	for _, m := range msgs {
		total += tokensPerMessage
		total += counter.Count(m.Role)
		total += counter.Count(m.Content)
		if m.Name != "" {
			total += counter.Count(m.Name) + tokensPerName
		}
		if m.ToolCallID != "" {
			total += counter.Count(m.ToolCallID)
		}
	}
	return total + tokensPerReply
}
