package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/logging"
)

// Memory is the state kept for one dataset.
type Memory struct {
	Namespace string
	Chat      *Buffer
	store     *Store
	topK      int
	log       *zap.Logger
}

// Recall returns past exchanges related to query, formatted for a system
// message. It returns "" without a vector store.
func (m *Memory) Recall(ctx context.Context, query string) (string, error) {
	if m.store == nil {
		return "", nil
	}
	hits, err := m.store.Search(ctx, m.Namespace, query, m.topK)
	if err != nil || len(hits) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Relevant notes from earlier sessions on this dataset:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(h.Text, "\n", " "))
	}
	return b.String(), nil
}

// Record appends an exchange to the chat buffer. Messages evicted from the
// buffer are moved to the vector store along with the final answer.
func (m *Memory) Record(ctx context.Context, question, answer string, turn ...ai.Message) {
	evicted := m.Chat.Append(turn...)
	if m.store == nil {
		return
	}
	texts := []string{fmt.Sprintf("Q: %s\nA: %s", question, answer)}
	for _, e := range evicted {
		if e.Role == "user" || (e.Role == "assistant" && e.Content != "") {
			texts = append(texts, e.Role+": "+e.Content)
		}
	}
	if _, err := m.store.Add(ctx, m.Namespace, strings.Join(texts, "\n\n")); err != nil {
		m.log.Warn("could not persist memory", zap.String("namespace", m.Namespace), zap.Error(err))
	}
}

// Manager hands out one Memory per namespace.
type Manager struct {
	mu       sync.Mutex
	store    *Store
	budget   int
	topK     int
	log      *zap.Logger
	memories map[string]*Memory
}

// NewManager returns a manager whose buffers hold budget tokens. store may
// be nil to disable vector memory.
func NewManager(store *Store, budget, topK int, log *zap.Logger) *Manager {
	if topK <= 0 {
		topK = 3
	}
	return &Manager{store: store, budget: budget, topK: topK, log: logging.OrNop(log), memories: map[string]*Memory{}}
}

// For returns the memory of namespace, creating it on first use.
func (m *Manager) For(namespace string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.memories[namespace]; ok {
		return mem
	}
	mem := &Memory{Namespace: namespace, Chat: NewBuffer(m.budget), store: m.store, topK: m.topK, log: m.log}
	m.memories[namespace] = mem
	return mem
}

// Forget drops the chat buffer of namespace and its stored passages.
func (m *Manager) Forget(ctx context.Context, namespace string) error {
	m.mu.Lock()
	delete(m.memories, namespace)
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.Clear(ctx, namespace)
}

// Close releases the vector store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
