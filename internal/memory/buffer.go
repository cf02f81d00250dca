// Package memory keeps per-dataset conversation history and an optional
// sqlite-backed vector memory of past questions and answers.
package memory

import (
	"sync"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

// Buffer is a chat history bounded by an estimated token budget.
type Buffer struct {
	mu        sync.Mutex
	messages  []ai.Message
	maxTokens int
}

// NewBuffer returns a buffer holding at most maxTokens; 0 means unbounded.
func NewBuffer(maxTokens int) *Buffer { return &Buffer{maxTokens: maxTokens} }

// BudgetFor is half the context window of model.
func BudgetFor(model string) int { return ai.ContextWindow(model) / 2 }

// Append adds msgs and, while the history exceeds the budget, evicts the
// oldest half. Evicted messages are returned so callers can persist them.
func (b *Buffer) Append(msgs ...ai.Message) []ai.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msgs...)
	if b.maxTokens <= 0 {
		return nil
	}
	var evicted []ai.Message
	for len(b.messages) > 1 && tokens(b.messages) > b.maxTokens {
		cut := len(b.messages) / 2
		// A tool result must stay with the assistant message that asked for it.
		for cut < len(b.messages) && b.messages[cut].Role == "tool" {
			cut++
		}
		if cut >= len(b.messages) {
			cut = len(b.messages) - 1
		}
		evicted = append(evicted, b.messages[:cut]...)
		b.messages = append([]ai.Message(nil), b.messages[cut:]...)
	}
	return evicted
}

// Messages returns a copy of the history.
func (b *Buffer) Messages() []ai.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ai.Message(nil), b.messages...)
}

// Tokens estimates the size of the history.
func (b *Buffer) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tokens(b.messages)
}

// Len is the number of messages held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

func tokens(msgs []ai.Message) int {
	n := 0
	for _, m := range msgs {
		n += utils.CountTokens(m.Content)
		for _, tc := range m.ToolCalls {
			n += utils.CountTokens(tc.Function.Name + tc.Function.Arguments)
		}
	}
	return n
}
