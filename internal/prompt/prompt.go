// Package prompt composes model prompts from a template and history, and
// splits conversation responses into a reply and an embedded review.
package prompt

import (
	"errors"
	"strings"
)

const (
	// HistoryPlaceholder marks where the serialized history is substituted.
	HistoryPlaceholder = "{history}"
	// ReviewMarker separates the conversational reply from the language review.
	ReviewMarker = "Review:"

	questionPrefix = "Human: "
)

// ErrMissingPlaceholder is returned for a template without HistoryPlaceholder.
var ErrMissingPlaceholder = errors.New("template is missing the " + HistoryPlaceholder + " placeholder")

// Validate checks that template can be composed.
func Validate(template string) error {
	if !strings.Contains(template, HistoryPlaceholder) {
		return ErrMissingPlaceholder
	}
	return nil
}

// Compose substitutes history into template and appends the question as the
// final "Human: <question>" line.
func Compose(template, history, question string) (string, error) {
	if err := Validate(template); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(template) + len(history) + len(question) + len(questionPrefix) + 1)
	b.WriteString(strings.ReplaceAll(template, HistoryPlaceholder, history))
	b.WriteByte('\n')
	b.WriteString(questionPrefix)
	b.WriteString(question)
	return b.String(), nil
}

// Split cuts raw at the first ReviewMarker. reply is the trimmed text before
// the marker; review is the trimmed text from the marker to the end, marker
// included, with any later markers left in place. Without a marker, reply is
// the trimmed raw text and found is false.
//
// A reply that legitimately contains the marker before its actual review will
// be cut early; callers rely on the first occurrence.
func Split(raw string) (reply, review string, found bool) {
	idx := strings.Index(raw, ReviewMarker)
	if idx < 0 {
		return strings.TrimSpace(raw), "", false
	}
	return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx:]), true
}
