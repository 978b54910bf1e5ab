// Package session keeps per-conversation history in memory. Nothing is
// persisted; a restart forgets every conversation.
package session

import (
	"sync"
	"time"

	"github.com/opsassist/opsassist/internal/prompts"
)

type Turn = prompts.Turn

// Conversation holds the last limit turns. A limit of zero keeps nothing.
type Conversation struct {
	mu    sync.Mutex
	limit int
	turns []Turn
	seen  time.Time
}

func NewConversation(limit int) *Conversation {
	if limit < 0 {
		limit = 0
	}
	return &Conversation{limit: limit, seen: time.Now()}
}

// History returns a copy of the retained turns, oldest first.
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

// Record appends a successfully answered question. Callers do not record
// failed questions.
func (c *Conversation) Record(question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = time.Now()
	if c.limit == 0 {
		return
	}
	c.turns = append(c.turns, Turn{Question: question, Answer: answer})
	if len(c.turns) > c.limit {
		c.turns = append([]Turn(nil), c.turns[len(c.turns)-c.limit:]...)
	}
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

func (c *Conversation) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.seen) {
		c.seen = now
	}
}

func (c *Conversation) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// Store maps session ids to conversations.
type Store struct {
	mu            sync.Mutex
	limit         int
	conversations map[string]*Conversation
}

func NewStore(limit int) *Store {
	return &Store{limit: limit, conversations: map[string]*Conversation{}}
}

// Get returns the conversation for id, creating it on first use. Every Get
// counts as activity for Prune.
func (s *Store) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		conversation = NewConversation(s.limit)
		s.conversations[id] = conversation
		return conversation
	}
	conversation.touch(time.Now())
	return conversation
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Prune drops conversations idle for longer than maxIdle and returns how
// many were removed.
func (s *Store) Prune(now time.Time, maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, conversation := range s.conversations {
		if now.Sub(conversation.lastSeen()) > maxIdle {
			delete(s.conversations, id)
			removed++
		}
	}
	return removed
}
