// Package gcode implements the streaming, unforgiving G-code parser
// and the semantic translator that turns parsed statements into
// internal/action Actions.
//
// Grounded on standalone/gcode/parser.go's char-by-char line scan and
// letter/number word extraction, made unforgiving by design: that
// parser silently skips malformed tokens, this one fails loudly with
// a ParsingError instead.
package gcode

import (
	"fmt"

	"github.com/PS-3D/3dprintd/internal/action"
)

// ParsingErrorKind tags why a line was rejected.
type ParsingErrorKind uint8

const (
	UnknownContent ParsingErrorKind = iota
	UnexpectedLineNumber
	ArgumentWithoutCommand
	NumberWithoutLetter
	LetterWithoutNumber
)

func (k ParsingErrorKind) String() string {
	switch k {
	case UnknownContent:
		return "unknown_content"
	case UnexpectedLineNumber:
		return "unexpected_line_number"
	case ArgumentWithoutCommand:
		return "argument_without_command"
	case NumberWithoutLetter:
		return "number_without_letter"
	case LetterWithoutNumber:
		return "letter_without_number"
	default:
		return fmt.Sprintf("parsing_error(%d)", uint8(k))
	}
}

// ParsingError is returned by Parser.ParseLine for any line the
// unforgiving grammar rejects.
type ParsingError struct {
	Kind ParsingErrorKind
	Span action.GCodeSpan
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("gcode: %s at %s:%d", e.Kind, e.Span.Path, e.Span.Line)
}

// Parser tokenizes one line of G-code text at a time. It holds no
// state across lines other than the source path used for span
// reporting; line numbers are supplied by the caller so the same
// Parser can be reused against a chunked reader (see Decoder).
type Parser struct {
	path string
}

// NewParser builds a parser that reports spans against path.
func NewParser(path string) *Parser {
	return &Parser{path: path}
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// word is one letter+number token extracted from a line, e.g. "X12.5"
// or "G1".
type word struct {
	letter byte
	number string // the raw numeric text, for both integer commands and float args
}

// scanWords splits a line (with any trailing ';' or '(' comment
// already stripped) into letter/number words. It is unforgiving: a
// digit (or '-'/'.') not preceded by a letter, or a letter not
// followed by at least one digit, is an error.
func scanWords(line string) ([]word, *ParsingErrorKind) {
	var words []word
	i := 0
	n := len(line)

	for i < n {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}

		c := line[i]
		switch {
		case isLetter(c):
			letter := toUpper(c)
			i++
			start := i
			if i < n && (line[i] == '-' || line[i] == '+') {
				i++
			}
			digitsStart := i
			for i < n && (isDigit(line[i]) || line[i] == '.') {
				i++
			}
			if i == digitsStart {
				k := LetterWithoutNumber
				return nil, &k
			}
			words = append(words, word{letter: letter, number: line[start:i]})
		case isDigit(c) || c == '-' || c == '+' || c == '.':
			k := NumberWithoutLetter
			return nil, &k
		default:
			k := UnknownContent
			return nil, &k
		}
	}
	return words, nil
}

func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == ';' || line[i] == '(' {
			return line[:i]
		}
	}
	return line
}

// ParseLine parses one line of G-code text. An empty or
// comment/whitespace-only line yields (nil, nil) — no statement.
func (p *Parser) ParseLine(lineNo int, raw string) (*action.GCode, error) {
	span := action.GCodeSpan{Path: p.path, Line: lineNo}
	text := stripComment(raw)

	words, errKind := scanWords(text)
	if errKind != nil {
		return nil, &ParsingError{Kind: *errKind, Span: span}
	}
	if len(words) == 0 {
		return nil, nil
	}

	if words[0].letter == 'N' {
		// Line numbers are accepted only as the very first word and
		// are not propagated further; UnexpectedLineNumber fires when
		// an 'N' word shows up anywhere else.
		words = words[1:]
		if len(words) == 0 {
			return nil, nil
		}
	}
	first := words[0]
	if first.letter == 'N' {
		return nil, &ParsingError{Kind: UnexpectedLineNumber, Span: span}
	}
	if first.letter != 'G' && first.letter != 'M' && first.letter != 'T' {
		return nil, &ParsingError{Kind: ArgumentWithoutCommand, Span: span}
	}

	numberVal, minor, err := parseCommandNumber(first.number)
	if err != nil {
		return nil, &ParsingError{Kind: UnknownContent, Span: span}
	}

	gc := &action.GCode{
		Letter: first.letter,
		Number: numberVal,
		Minor:  minor,
		Span:   span,
	}

	for _, w := range words[1:] {
		if w.letter == 'N' {
			return nil, &ParsingError{Kind: UnexpectedLineNumber, Span: span}
		}
		if w.letter == 'G' || w.letter == 'M' || w.letter == 'T' {
			return nil, &ParsingError{Kind: ArgumentWithoutCommand, Span: span}
		}
		v, err := parseFloat(w.number)
		if err != nil {
			return nil, &ParsingError{Kind: UnknownContent, Span: span}
		}
		gc.Args = append(gc.Args, action.Arg{Letter: w.letter, Value: v})
	}

	return gc, nil
}

// parseCommandNumber splits "1", "104", "104.1" into (104, 1).
func parseCommandNumber(s string) (int, int, error) {
	intPart := s
	minor := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart = s[:i]
			frac := s[i+1:]
			if frac == "" {
				return 0, 0, fmt.Errorf("gcode: empty minor number")
			}
			m, err := atoi(frac)
			if err != nil {
				return 0, 0, err
			}
			minor = m
			break
		}
	}
	n, err := atoi(intPart)
	if err != nil {
		return 0, 0, err
	}
	return n, minor, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("gcode: empty number")
	}
	neg := false
	i := 0
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		i++
	}
	if i == len(s) {
		return 0, fmt.Errorf("gcode: no digits in %q", s)
	}
	v := 0
	for ; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, fmt.Errorf("gcode: non-digit in %q", s)
		}
		v = v*10 + int(s[i]-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("gcode: empty argument value")
	}
	neg := false
	i := 0
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		i++
	}
	start := i
	intPart := 0.0
	for i < len(s) && isDigit(s[i]) {
		intPart = intPart*10 + float64(s[i]-'0')
		i++
	}
	frac := 0.0
	fracDiv := 1.0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			frac = frac*10 + float64(s[i]-'0')
			fracDiv *= 10
			i++
		}
	}
	if i != len(s) || i == start {
		return 0, fmt.Errorf("gcode: malformed number %q", s)
	}
	v := intPart + frac/fracDiv
	if neg {
		v = -v
	}
	return v, nil
}
