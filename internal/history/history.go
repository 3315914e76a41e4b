// Package history holds the bounded, ordered turn log of one tutor session.
package history

import "strings"

// MaxTurns caps the number of turns a Store retains.
const MaxTurns = 10

// Speaker attributes a turn.
type Speaker string

const (
	Human     Speaker = "Human"
	Assistant Speaker = "Assistant"
)

// Turn is one attributed utterance.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

func (t Turn) String() string {
	return string(t.Speaker) + ": " + t.Text
}

// Store is a sliding window over the most recent turns, oldest first.
// A Store is owned by a single session and is not safe for concurrent use.
type Store struct {
	turns []Turn
	limit int
}

// NewStore returns an empty store capped at limit turns. Limits outside
// (0, MaxTurns] fall back to MaxTurns.
func NewStore(limit int) *Store {
	if limit <= 0 || limit > MaxTurns {
		limit = MaxTurns
	}
	return &Store{limit: limit}
}

// Append adds turns at the end and evicts from the front until the store is
// back within its cap.
func (s *Store) Append(turns ...Turn) {
	s.turns = append(s.turns, turns...)
	if over := len(s.turns) - s.limit; over > 0 {
		kept := make([]Turn, s.limit)
		copy(kept, s.turns[over:])
		s.turns = kept
	}
}

// Serialize renders each turn as "<Speaker>: <text>", newline-joined in
// stored order. An empty store yields "".
func (s *Store) Serialize() string {
	if len(s.turns) == 0 {
		return ""
	}
	lines := make([]string, len(s.turns))
	for i, t := range s.turns {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}

func (s *Store) Clear() { s.turns = nil }

func (s *Store) Len() int { return len(s.turns) }

func (s *Store) Limit() int { return s.limit }

// Turns returns a copy of the retained turns, oldest first.
func (s *Store) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
