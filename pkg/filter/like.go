package filter

import "unicode/utf8"

// Like matches a string property against a pattern.
//
// Wildcard matches any run of characters, Single matches exactly one and
// Escape makes the next pattern character literal. Zero values default to
// '%', '_' and '\\'. Unless MatchCase is set, ASCII letters match without
// regard to case; other characters always match exactly.
type Like struct {
	Property  string
	Pattern   string
	Wildcard  rune
	Single    rune
	Escape    rune
	MatchCase bool
}

// Token kinds of a compiled pattern.
const (
	tokLiteral = iota
	tokSingle
	tokAny
)

// Token is one element of a compiled Like pattern.
type Token struct {
	Kind int
	Char rune
}

// IsLiteral reports whether t matches one given character.
func (t Token) IsLiteral() bool { return t.Kind == tokLiteral }

// IsSingle reports whether t matches any one character.
func (t Token) IsSingle() bool { return t.Kind == tokSingle }

// IsAny reports whether t matches any run of characters.
func (t Token) IsAny() bool { return t.Kind == tokAny }

func (l Like) specials() (wild, single, esc rune) {
	wild, single, esc = l.Wildcard, l.Single, l.Escape
	if wild == 0 {
		wild = '%'
	}
	if single == 0 {
		single = '_'
	}
	if esc == 0 {
		esc = '\\'
	}
	return wild, single, esc
}

// Tokens compiles the pattern. A trailing escape character is literal.
func (l Like) Tokens() []Token {
	wild, single, esc := l.specials()
	var out []Token
	escaped := false
	for _, r := range l.Pattern {
		switch {
		case escaped:
			out = append(out, Token{Kind: tokLiteral, Char: r})
			escaped = false
		case r == esc:
			escaped = true
		case r == wild:
			if len(out) == 0 || !out[len(out)-1].IsAny() {
				out = append(out, Token{Kind: tokAny})
			}
		case r == single:
			out = append(out, Token{Kind: tokSingle})
		default:
			out = append(out, Token{Kind: tokLiteral, Char: r})
		}
	}
	if escaped {
		out = append(out, Token{Kind: tokLiteral, Char: esc})
	}
	return out
}

func (l Like) Evaluate(f Feature) bool {
	v, ok := f.Property(l.Property)
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return match(l.Tokens(), s, l.MatchCase)
}

func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 'a' - 'A'
	}
	return r
}

// match runs the classic single-backtrack wildcard match over runes.
func match(toks []Token, s string, matchCase bool) bool {
	eq := func(a, b rune) bool {
		if matchCase {
			return a == b
		}
		return foldASCII(a) == foldASCII(b)
	}

	ti, si := 0, 0
	starT, starS := -1, 0
	for si < len(s) {
		r, size := utf8.DecodeRuneInString(s[si:])
		if ti < len(toks) {
			t := toks[ti]
			switch {
			case t.IsAny():
				starT, starS = ti, si
				ti++
				continue
			case t.IsSingle(), t.IsLiteral() && eq(t.Char, r):
				ti++
				si += size
				continue
			}
		}
		if starT < 0 {
			return false
		}
		_, skip := utf8.DecodeRuneInString(s[starS:])
		starS += skip
		si = starS
		ti = starT + 1
	}
	for ti < len(toks) && toks[ti].IsAny() {
		ti++
	}
	return ti == len(toks)
}
