// Package conversation holds the session transcript and the ask cycle's
// in-flight flag.
package conversation

import (
	"errors"
)

var (
	// ErrAskFailed classifies any transport failure while waiting for an answer.
	ErrAskFailed = errors.New("ask failed")
	// ErrBusy is returned when a question is already awaiting an answer.
	ErrBusy = errors.New("response already in flight")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Messages are never mutated.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ThinkingText is shown in place of the pending answer.
const ThinkingText = "Thinking..."

// Entry is a displayable row: a transcript message or the synthetic
// thinking indicator.
type Entry struct {
	Message
	Thinking bool `json:"thinking,omitempty"`
}

// Ticket identifies one submitted question.
type Ticket struct {
	gen uint64
}

// Store is an append-only transcript. It is not safe for concurrent use.
type Store struct {
	messages   []Message
	responding bool
	gen        uint64
}

// Begin appends the user's question and marks a response as in flight.
func (s *Store) Begin(question string) (Ticket, error) {
	if s.responding {
		return Ticket{}, ErrBusy
	}
	s.messages = append(s.messages, Message{Role: RoleUser, Content: question})
	s.gen++
	s.responding = true
	return Ticket{gen: s.gen}, nil
}

// Settle applies the transport result for t. A successful answer is
// appended exactly as received. A failure appends nothing and leaves the
// question unanswered. Stale tickets are ignored.
func (s *Store) Settle(t Ticket, answer string, err error) bool {
	if t.gen == 0 || t.gen != s.gen || !s.responding {
		return false
	}
	s.responding = false
	if err == nil {
		s.messages = append(s.messages, Message{Role: RoleAssistant, Content: answer})
	}
	return true
}

// Messages returns a copy of the transcript in display order.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int { return len(s.messages) }
func (s *Store) Responding() bool { return s.responding }

// View returns the transcript plus the thinking indicator while a
// response is pending.
func (s *Store) View() []Entry {
	out := make([]Entry, 0, len(s.messages)+1)
	for _, m := range s.messages {
		out = append(out, Entry{Message: m})
	}
	if s.responding {
		out = append(out, Entry{
			Message:  Message{Role: RoleAssistant, Content: ThinkingText},
			Thinking: true,
		})
	}
	return out
}
