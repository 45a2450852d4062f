package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Patterns are compiled once and are safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs and bare domains with a
	// path. The bare-domain form needs a "/" so "v2.0" or "3.14" stay clean.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// emailPattern matches an address anywhere in the text.
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)

	// phonePattern matches formats such as +1-555-123-4567, (555) 123-4567
	// and 555.123.4567, bounded by whitespace so "100" or "2024" pass.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

type spamCheck struct {
	name  string
	match func(string) bool
}

// spamChecks run in order; the first match wins.
var spamChecks = []spamCheck{
	{name: "url", match: urlPattern.MatchString},
	{name: "email", match: emailPattern.MatchString},
	{name: "phone", match: phonePattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
	{name: "shouting", match: isShouting},
}

// hasCharFlood reports 5 or more consecutive identical characters. RE2 has
// no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 3 or more times in a row,
// case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.Fields(text)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// isShouting reports text with at least 12 letters of which more than 70%
// are upper case.
func isShouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= 12 && float64(upper)/float64(letters) > 0.7
}

func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}
