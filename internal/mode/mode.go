// Package mode defines the tutor's interaction modes and the prompt template
// owned by each mode and sub-option.
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the interaction mode.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindVocabulary   Kind = "vocabulary"
	KindGrammar      Kind = "grammar"
)

// Style is the conversation sub-option.
type Style string

const (
	StyleFormal Style = "formal"
	StyleCasual Style = "casual"
)

// Level is the grammar sub-option.
type Level string

const (
	LevelExpert       Level = "expert"
	LevelIntermediate Level = "intermediate"
	LevelBeginner     Level = "beginner"
)

// ErrUnknownMode is returned for a mode or sub-option outside the closed set.
var ErrUnknownMode = errors.New("unknown mode")

// Mode is a closed variant: Conversation carries a Style, Grammar carries a
// Level, Vocabulary carries neither. Build values with Conversation,
// Vocabulary, Grammar or Parse.
type Mode struct {
	Kind  Kind  `json:"mode"`
	Style Style `json:"style,omitempty"`
	Level Level `json:"level,omitempty"`
}

func Conversation(style Style) Mode { return Mode{Kind: KindConversation, Style: style} }

func Vocabulary() Mode { return Mode{Kind: KindVocabulary} }

func Grammar(level Level) Mode { return Mode{Kind: KindGrammar, Level: level} }

// Default is the mode a new session starts in.
func Default() Mode { return Conversation(StyleFormal) }

// All lists every valid mode in display order.
func All() []Mode {
	return []Mode{
		Conversation(StyleFormal),
		Conversation(StyleCasual),
		Vocabulary(),
		Grammar(LevelExpert),
		Grammar(LevelIntermediate),
		Grammar(LevelBeginner),
	}
}

// Validate reports ErrUnknownMode when m is not one of All().
func (m Mode) Validate() error {
	switch m.Kind {
	case KindConversation:
		if m.Level != "" {
			return fmt.Errorf("%w: conversation does not take a level", ErrUnknownMode)
		}
		switch m.Style {
		case StyleFormal, StyleCasual:
			return nil
		}
		return fmt.Errorf("%w: conversation style %q", ErrUnknownMode, m.Style)
	case KindVocabulary:
		if m.Style != "" || m.Level != "" {
			return fmt.Errorf("%w: vocabulary takes no option", ErrUnknownMode)
		}
		return nil
	case KindGrammar:
		if m.Style != "" {
			return fmt.Errorf("%w: grammar does not take a style", ErrUnknownMode)
		}
		switch m.Level {
		case LevelExpert, LevelIntermediate, LevelBeginner:
			return nil
		}
		return fmt.Errorf("%w: grammar level %q", ErrUnknownMode, m.Level)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, m.Kind)
	}
}

// SplitsReview reports whether responses in this mode carry an embedded review.
func (m Mode) SplitsReview() bool { return m.Kind == KindConversation }

// Speaks reports whether replies in this mode are synthesized to audio.
func (m Mode) Speaks() bool { return m.Kind == KindConversation }

// Option returns the sub-option as a plain string, empty for vocabulary.
func (m Mode) Option() string {
	switch m.Kind {
	case KindConversation:
		return string(m.Style)
	case KindGrammar:
		return string(m.Level)
	default:
		return ""
	}
}

func (m Mode) String() string {
	if opt := m.Option(); opt != "" {
		return string(m.Kind) + "/" + opt
	}
	return string(m.Kind)
}

// Parse builds a Mode from the kind and sub-option strings used at the UI
// boundary. Matching is case-insensitive; an empty option selects the first
// sub-option of the kind.
func Parse(kind, option string) (Mode, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	opt := strings.ToLower(strings.TrimSpace(option))

	var m Mode
	switch k {
	case KindConversation:
		if opt == "" {
			opt = string(StyleFormal)
		}
		m = Conversation(Style(opt))
	case KindVocabulary:
		m = Vocabulary()
		if opt != "" {
			return Mode{}, fmt.Errorf("%w: vocabulary takes no option, got %q", ErrUnknownMode, option)
		}
	case KindGrammar:
		if opt == "" {
			opt = string(LevelExpert)
		}
		m = Grammar(Level(opt))
	default:
		return Mode{}, fmt.Errorf("%w: %q", ErrUnknownMode, kind)
	}
	if err := m.Validate(); err != nil {
		return Mode{}, err
	}
	return m, nil
}
