package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// EOF is returned by TextReader.Read once the input is exhausted.
const EOF rune = -1

// TextReader reads runes with a stackable pushback. EOF may be pushed back
// like any other rune.
type TextReader struct {
	src      *bufio.Reader
	pushback []rune
	pos      int
	err      error
}

func NewTextReader(r io.Reader) *TextReader {
	return &TextReader{src: bufio.NewReader(r)}
}

// Position returns the number of runes consumed so far.
func (r *TextReader) Position() int {
	return r.pos
}

// Err returns the first read error other than io.EOF.
func (r *TextReader) Err() error {
	return r.err
}

func (r *TextReader) Read() rune {
	r.pos++
	if n := len(r.pushback); n > 0 {
		c := r.pushback[n-1]
		r.pushback = r.pushback[:n-1]
		return c
	}
	c, _, err := r.src.ReadRune()
	if err != nil {
		if err != io.EOF && r.err == nil {
			r.err = err
		}
		return EOF
	}
	return c
}

func (r *TextReader) Unread(c rune) {
	r.pushback = append(r.pushback, c)
	r.pos--
}

// UnreadString hands s back so that its first rune is read next.
func (r *TextReader) UnreadString(s string) {
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		r.Unread(runes[i])
	}
}

func (r *TextReader) Peek() rune {
	c := r.Read()
	r.Unread(c)
	return c
}

// IsWordRune reports whether c can be part of a word.
func IsWordRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// ReadWord reads the longest run of word runes; it may be empty.
func (r *TextReader) ReadWord() string {
	var b strings.Builder
	for {
		c := r.Read()
		if c == EOF || !IsWordRune(c) {
			r.Unread(c)
			return b.String()
		}
		b.WriteRune(c)
	}
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ReadNumber reads the text of a numeric literal: an optional sign, then a
// hexadecimal integer or a decimal with optional fraction and exponent.
func (r *TextReader) ReadNumber() string {
	var b strings.Builder
	accept := func(ok func(rune) bool) bool {
		c := r.Read()
		if c != EOF && ok(c) {
			b.WriteRune(c)
			return true
		}
		r.Unread(c)
		return false
	}
	sign := func(c rune) bool { return c == '+' || c == '-' }

	accept(sign)
	if r.Peek() == '0' {
		accept(isDigit)
		if accept(func(c rune) bool { return c == 'x' || c == 'X' }) {
			for accept(isHexDigit) {
			}
			return b.String()
		}
	}
	for accept(isDigit) {
	}
	if accept(func(c rune) bool { return c == '.' }) {
		for accept(isDigit) {
		}
	}
	if accept(func(c rune) bool { return c == 'e' || c == 'E' }) {
		accept(sign)
		for accept(isDigit) {
		}
	}
	return b.String()
}

// ReadQuoted reads a string delimited by ' or ". Inside it, a doubled
// delimiter stands for one delimiter. The returned text excludes the
// delimiters.
func (r *TextReader) ReadQuoted() (string, error) {
	start := r.pos
	quote := r.Read()
	if quote != '"' && quote != '\'' {
		r.Unread(quote)
		return "", fmt.Errorf("offset %d: expected string delimiter, found %s", start, Describe(quote))
	}
	var b strings.Builder
	for {
		c := r.Read()
		if c == EOF {
			return "", fmt.Errorf("offset %d: unterminated string", start)
		}
		if c == quote {
			if next := r.Read(); next != quote {
				r.Unread(next)
				return b.String(), nil
			}
		}
		b.WriteRune(c)
	}
}

// Expect consumes c or leaves the input untouched and fails.
func (r *TextReader) Expect(c rune) error {
	got := r.Read()
	if got != c {
		r.Unread(got)
		return fmt.Errorf("offset %d: expected %q, found %s", r.pos, c, Describe(got))
	}
	return nil
}

// SkipSpace consumes white space including newlines.
func (r *TextReader) SkipSpace() {
	for {
		c := r.Read()
		if c == EOF || !unicode.IsSpace(c) {
			r.Unread(c)
			return
		}
	}
}

// Describe renders c for error messages.
func Describe(c rune) string {
	if c == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", c)
}
