package ontology

import (
	"strings"
	"unicode"
)

// Normalize produces the canonical form of an utterance used as a key for
// learned phrases and the escalation cache: lowercased, trimmed, inner
// whitespace collapsed, trailing punctuation removed.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	out := strings.Join(fields, " ")
	return strings.TrimRight(out, ".!?,;: ")
}

// Tokenize lowercases text and splits it into word tokens. Apostrophes stay
// inside words ("don't"), a leading slash or hash is kept ("/undo", "#2") and
// "&" is its own token. Everything else separates tokens.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case r == '\'' || r == '’':
			if cur.Len() > 0 {
				cur.WriteRune('\'')
			}
		case r == '.' && cur.Len() > 0 && isDigits(cur.String()):
			cur.WriteRune(r)
		case (r == '/' || r == '#') && cur.Len() == 0:
			cur.WriteRune(r)
		case r == '&':
			flush()
			tokens = append(tokens, "&")
		case r == ',':
			flush()
			tokens = append(tokens, ",")
		default:
			flush()
		}
	}
	flush()
	for i, t := range tokens {
		tokens[i] = strings.TrimRight(strings.TrimSuffix(t, "'"), ".")
	}
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsNumeric reports whether the token is an integer or decimal number.
func IsNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	dot := false
	for i, r := range tok {
		if r == '.' && !dot && i > 0 {
			dot = true
			continue
		}
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Phrase is a pre-tokenized multi-word term.
type Phrase []string

// Compile tokenizes a list of terms.
func Compile(terms ...string) []Phrase {
	out := make([]Phrase, 0, len(terms))
	for _, t := range terms {
		if toks := Tokenize(t); len(toks) > 0 {
			out = append(out, Phrase(toks))
		}
	}
	return out
}

// String rejoins the phrase.
func (p Phrase) String() string {
	return strings.Join(p, " ")
}

// IndexIn returns the token offset of the first occurrence of p in tokens,
// or -1.
func (p Phrase) IndexIn(tokens []string) int {
	if len(p) == 0 || len(p) > len(tokens) {
		return -1
	}
outer:
	for i := 0; i+len(p) <= len(tokens); i++ {
		for j := range p {
			if tokens[i+j] != p[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// MatchAt reports whether p occurs in tokens at offset i.
func (p Phrase) MatchAt(tokens []string, i int) bool {
	if len(p) == 0 || i < 0 || i+len(p) > len(tokens) {
		return false
	}
	for j := range p {
		if tokens[i+j] != p[j] {
			return false
		}
	}
	return true
}

// Match is a phrase found in a token stream.
type Match struct {
	Phrase Phrase
	Start  int
	End    int // exclusive
}

// FindFirst returns the longest phrase of the list that occurs earliest in
// tokens.
func FindFirst(tokens []string, phrases []Phrase) (Match, bool) {
	best := Match{Start: -1}
	for _, p := range phrases {
		idx := p.IndexIn(tokens)
		if idx < 0 {
			continue
		}
		if best.Start < 0 || idx < best.Start || (idx == best.Start && len(p) > len(best.Phrase)) {
			best = Match{Phrase: p, Start: idx, End: idx + len(p)}
		}
	}
	return best, best.Start >= 0
}

// ContainsAny reports whether any phrase occurs in tokens.
func ContainsAny(tokens []string, phrases []Phrase) bool {
	_, ok := FindFirst(tokens, phrases)
	return ok
}
