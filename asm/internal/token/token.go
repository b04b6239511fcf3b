package token

import "unicode"

type Type int

const (
	Ident Type = iota
	Directive
	Number
	Label
	Comma
	Newline
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case Directive:
		return "directive"
	case Number:
		return "number"
	case Label:
		return "label"
	case Comma:
		return "','"
	case Newline:
		return "end of line"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

// Tokenize splits assembler source into tokens. Each non-empty line ends with
// a Newline token so the parser can treat lines as statements. Comments run
// from ';' or '#' to the end of the line.
func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	runes := []rune(input)

	endLine := func() {
		if n := len(tokens); n > 0 && tokens[n-1].Type != Newline {
			tokens = append(tokens, Token{"", Newline, line})
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			endLine()
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == ';' || r == '#' {
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		}

		if r == ',' {
			tokens = append(tokens, Token{",", Comma, line})
			continue
		}

		if r == '-' || r == '+' || unicode.IsDigit(r) {
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || unicode.IsLetter(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, Token{string(runes[start:i]), Number, line})
			i--
			continue
		}

		if r == '.' || r == '_' || unicode.IsLetter(r) {
			start := i
			for i < len(runes) {
				c := runes[i]
				if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.' {
					i++
				} else {
					break
				}
			}
			value := string(runes[start:i])
			switch {
			case i < len(runes) && runes[i] == ':':
				tokens = append(tokens, Token{value, Label, line})
			case runes[start] == '.':
				tokens = append(tokens, Token{value, Directive, line})
				i--
			default:
				tokens = append(tokens, Token{value, Ident, line})
				i--
			}
			continue
		}

		// Anything else becomes a single-rune identifier so the parser can
		// report it with a line number.
		tokens = append(tokens, Token{string(r), Ident, line})
	}
	endLine()

	return tokens
}
