package patterns

import (
	"strings"
	"unicode"
)

// Tokenize splits snake_case, kebab-case and CamelCase names into lower
// case tokens. Acronyms stay together ("HTTPServer" yields "http",
// "server"), a lone capital before a word joins it ("OAuthToken" yields
// "oauth", "token") and digits stay with the token they follow
// ("CoreV1Api" yields "core", "v1", "api").
func Tokenize(name string) []string {
	var tokens []string
	runes := []rune(name)
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			tokens = append(tokens, strings.ToLower(string(runes[start:end])))
		}
		start = -1
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsDigit(r):
		case unicode.IsDigit(prev) && unicode.IsUpper(r):
			flush(i)
			start = i
		case unicode.IsLower(prev) && unicode.IsUpper(r):
			flush(i)
			start = i
		case unicode.IsUpper(prev) && unicode.IsUpper(r) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]) && i-start > 1:
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return tokens
}

// SnakeCase joins the tokens of a name with underscores
func SnakeCase(name string) string {
	return strings.Join(Tokenize(name), "_")
}

func lettersOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

type lexicon map[string]bool

func newLexicon(words ...string) lexicon {
	l := make(lexicon, len(words))
	for _, w := range words {
		l[w] = true
	}
	return l
}

// hasAny reports whether any token is in the lexicon
func (l lexicon) hasAny(tokens []string) bool {
	for _, t := range tokens {
		if l[t] {
			return true
		}
	}
	return false
}
