// Package moderation screens generated text before it reaches a participant.
// Conversation starters produced by the enrichment tier pass through Filter;
// anything that trips the keyword blocklist or a spam pattern is dropped and
// the template starter is used instead.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult describes why a text was blocked. The zero value means clean.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched term or spam check name
}

// defaultTerms are unacceptable in a professional introduction: profanity
// plus the usual solicitation phrases.
var defaultTerms = []string{
	"fuck", "shit", "bitch", "asshole", "bastard",
	"send money", "wire transfer", "crypto giveaway", "investment opportunity",
	"dm me", "whatsapp me", "click here",
}

// Filter checks text against a keyword blocklist and the spam checks.
// It is immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string
}

// NewFilter returns a filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms builds a filter from terms. Single-word terms match
// whole tokens; multi-word terms match consecutive tokens. Blank terms are
// ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		tokens := tokenizePlain(term)
		switch len(tokens) {
		case 0:
			continue
		case 1:
			f.words[tokens[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, tokens)
		}
	}
	return f
}

// Check returns the first reason text should be blocked. Keywords are
// checked before spam patterns.
func (f *Filter) Check(text string) FilterResult {
	plain := tokenizePlain(text)

	for _, tok := range plain {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}
	for _, tok := range tokenizeLeet(text) {
		norm := normalizeLeet(tok)
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}
	for _, phrase := range f.phrases {
		if containsSequence(plain, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: strings.Join(phrase, " ")}
		}
	}

	return f.checkSpamPatterns(text)
}

// Screen returns the lines that pass Check, in order, and the results for
// the ones that did not.
func (f *Filter) Screen(lines []string) (kept []string, rejected []FilterResult) {
	for _, l := range lines {
		if res := f.Check(l); res.Blocked {
			rejected = append(rejected, res)
			continue
		}
		kept = append(kept, l)
	}
	return kept, rejected
}

func containsSequence(tokens, seq []string) bool {
	if len(seq) == 0 || len(tokens) < len(seq) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j := range seq {
			if tokens[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

var leetReplacer = strings.NewReplacer(
	"0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t",
	"@", "a", "$", "s", "!", "i",
)

// normalizeLeet maps common character substitutions back to letters.
func normalizeLeet(s string) string {
	return leetReplacer.Replace(strings.ToLower(s))
}

// tokenizePlain lower-cases text and splits it on anything that is not a
// letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits on whitespace only, keeping symbols that may stand in
// for letters. Sentence punctuation at the token edges is trimmed.
func tokenizeLeet(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:?\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
