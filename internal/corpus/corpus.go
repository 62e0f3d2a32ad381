// Package corpus supplies the chat messages sent by each request.
package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Selection controls how Next walks the corpus.
type Selection string

const (
	SelectRandom     Selection = "random"
	SelectRoundRobin Selection = "round_robin"
)

// ParseSelection accepts the selection names used in configuration.
// An empty name selects random.
func ParseSelection(name string) (Selection, error) {
	switch Selection(name) {
	case "", SelectRandom:
		return SelectRandom, nil
	case SelectRoundRobin, "round-robin", "roundrobin":
		return SelectRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown corpus selection %q (expected random or round_robin)", name)
	}
}

// ErrEmpty is returned when a corpus would have no messages.
var ErrEmpty = errors.New("corpus contains no messages")

// Corpus hands out messages from a fixed set. It is safe for concurrent use.
type Corpus struct {
	messages  []Message
	selection Selection

	mu    sync.Mutex
	index int
}

// New builds a corpus over messages. Messages without a role default to "user".
func New(messages []Message, selection Selection) (*Corpus, error) {
	if len(messages) == 0 {
		return nil, ErrEmpty
	}
	selection, err := ParseSelection(string(selection))
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(messages))
	for i, m := range messages {
		if m.Content == "" {
			return nil, fmt.Errorf("message %d has empty content", i)
		}
		if m.Role == "" {
			m.Role = "user"
		}
		msgs[i] = m
	}
	return &Corpus{messages: msgs, selection: selection}, nil
}

// Next returns the next message according to the corpus selection.
func (c *Corpus) Next() Message {
	if c.selection == SelectRandom {
		return c.messages[rand.IntN(len(c.messages))]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.messages[c.index]
	c.index = (c.index + 1) % len(c.messages)
	return m
}

// Len returns the number of messages.
func (c *Corpus) Len() int {
	return len(c.messages)
}

// Selection reports how messages are picked.
func (c *Corpus) Selection() Selection {
	return c.selection
}
