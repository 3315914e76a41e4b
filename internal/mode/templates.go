package mode

import (
	"fmt"
	"strings"

	"github.com/ent0n29/tutor/internal/prompt"
)

const audience = "an Indian student who is around the age of 50"

const conversationBody = " Always keep the conversation going. Instead of asking them what they want to talk about, " +
	"suggest topics (make sure these topics are friendly to Indians and also someone who is around 50 years old) " +
	"and start talking about them to motivate the user to get into a conversation and try to get them to talk to you " +
	"by initiating the conversation, but below your response to the conversation put a review of what the user said " +
	"and if they used good English or what could have been a better way to say it."

var conversationPrompts = map[Style]string{
	StyleFormal: "You are an English tutor in disguise having a formal conversation with " + audience +
		". Respond to their questions or statements in a professional and academic manner." + conversationBody,
	StyleCasual: "You are an English tutor in disguise having a casual conversation with " + audience +
		". Respond to their questions or statements in a friendly and casual manner." + conversationBody,
}

const vocabularyPrompt = "You are an English tutor in disguise helping " + audience +
	" improve their vocabulary. Provide detailed explanations and examples like synonyms and similar words to what the student asks."

const grammarPromptFormat = "You are an English tutor in disguise helping " + audience +
	" by testing their grammar. Give them exercises according to their level which is %s, like fill in the blanks " +
	"to complete these sentences, or change the tense of this sentence and then provide them with a review and help them get better."

// Template returns the prompt template for m. Every template ends with the
// history placeholder; the question line is appended at composition time.
func Template(m Mode) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	switch m.Kind {
	case KindConversation:
		return conversationPrompts[m.Style] + prompt.HistoryPlaceholder, nil
	case KindVocabulary:
		return vocabularyPrompt + prompt.HistoryPlaceholder, nil
	case KindGrammar:
		return fmt.Sprintf(grammarPromptFormat, levelLabel(m.Level)) + prompt.HistoryPlaceholder, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, m.Kind)
}

// levelLabel renders the level the way learners see it ("Intermediate").
func levelLabel(l Level) string {
	s := string(l)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ValidateTemplates checks that every mode resolves to a template that
// composes. It is meant to run once at startup.
func ValidateTemplates() error {
	for _, m := range All() {
		tmpl, err := Template(m)
		if err != nil {
			return err
		}
		if err := prompt.Validate(tmpl); err != nil {
			return fmt.Errorf("template for %s: %w", m, err)
		}
	}
	return nil
}
