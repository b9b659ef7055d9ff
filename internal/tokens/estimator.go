// Package tokens provides the keystroke-cheap token estimate shown next to
// card fields. It is a characters-per-token heuristic, not a tokenizer:
// the contract is determinism, monotonicity, and speed, not exactness
// against any particular model.
package tokens

import (
	"unicode/utf8"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// Vocab selects the chars-per-token divisor. Large-vocabulary models pack
// more characters into each token than small ones.
type Vocab int

const (
	// VocabBig assumes roughly 6 characters per token.
	VocabBig Vocab = iota
	// VocabSmall assumes roughly 4 characters per token.
	VocabSmall
)

// CharsPerToken returns the divisor for the vocabulary mode.
func (v Vocab) CharsPerToken() int {
	if v == VocabSmall {
		return 4
	}
	return 6
}

// Estimate approximates the token count of text. Appending to text never
// decreases the estimate.
func Estimate(text string, vocab Vocab) int {
	return utf8.RuneCountInString(text) / vocab.CharsPerToken()
}

// EstimateCard totals the character load of everything a card sends to a
// model: the prompt-visible text fields, greetings, tags, creator info,
// and character book entries. Characters are summed before dividing so the
// result matches a single Estimate over the concatenation.
func EstimateCard(data *types.CardData, vocab Vocab) int {
	total := 0
	for _, field := range types.TextFields() {
		total += utf8.RuneCountInString(data.FieldValue(field))
	}
	for _, greeting := range data.AlternateGreetings {
		total += utf8.RuneCountInString(greeting)
	}
	for _, tag := range data.Tags {
		total += utf8.RuneCountInString(tag)
	}
	total += utf8.RuneCountInString(data.Creator)
	total += utf8.RuneCountInString(data.CharacterVersion)

	if book := data.CharacterBook; book != nil {
		for _, entry := range book.Entries {
			total += utf8.RuneCountInString(entry.Content)
			total += utf8.RuneCountInString(entry.Name)
			total += utf8.RuneCountInString(entry.Comment)
			for _, key := range entry.Keys {
				total += utf8.RuneCountInString(key)
			}
			for _, key := range entry.SecondaryKeys {
				total += utf8.RuneCountInString(key)
			}
		}
	}
	return total / vocab.CharsPerToken()
}
