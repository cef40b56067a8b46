package config

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fwessels/arma-cfg/internal/stream"
)

// DecodeText parses preprocessed text config source. Directives and macros
// must already be resolved; comments are skipped.
func DecodeText(r io.Reader) (*Class, error) {
	d := &textDecoder{in: stream.NewTextReader(r)}
	entries, err := d.body(true)
	if err != nil {
		return nil, err
	}
	if err := d.in.Err(); err != nil {
		return nil, &DecodeError{Format: FormatText, Offset: d.in.Position(), Msg: "read failed", Err: err}
	}
	return &Class{Entries: entries}, nil
}

type textDecoder struct {
	in *stream.TextReader
}

func (d *textDecoder) fail(at int, token string, format string, args ...any) error {
	return &DecodeError{Format: FormatText, Offset: at, Token: token, Msg: fmt.Sprintf(format, args...)}
}

// failNext reports a problem with the rune at the current position.
func (d *textDecoder) failNext(format string, args ...any) error {
	return d.fail(d.in.Position(), stream.Describe(d.in.Peek()), format, args...)
}

// skip consumes white space and comments.
func (d *textDecoder) skip() error {
	for {
		d.in.SkipSpace()
		at := d.in.Position()
		c := d.in.Read()
		if c != '/' {
			d.in.Unread(c)
			return nil
		}
		switch d.in.Peek() {
		case '/':
			for c := d.in.Read(); c != '\n' && c != stream.EOF; c = d.in.Read() {
			}
		case '*':
			d.in.Read()
			for {
				c := d.in.Read()
				if c == stream.EOF {
					return d.fail(at, "", "unterminated comment")
				}
				if c == '*' && d.in.Peek() == '/' {
					d.in.Read()
					break
				}
			}
		default:
			d.in.Unread(c)
			return nil
		}
	}
}

func (d *textDecoder) expect(want rune, context string) error {
	if err := d.skip(); err != nil {
		return err
	}
	if d.in.Peek() != want {
		return d.failNext("expected %q %s", want, context)
	}
	d.in.Read()
	return nil
}

// body reads entries up to the closing brace of a class, or up to the end
// of input for the root class. The brace is left unread.
func (d *textDecoder) body(root bool) ([]Entry, error) {
	entries := make([]Entry, 0)
	for {
		if err := d.skip(); err != nil {
			return nil, err
		}
		switch d.in.Peek() {
		case stream.EOF:
			if !root {
				return nil, d.failNext("expected '}' to close the class")
			}
			return entries, nil
		case '}':
			if root {
				return nil, d.failNext("unexpected '}' outside of a class")
			}
			return entries, nil
		case ';':
			d.in.Read()
			continue
		}
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
}

// entry reads one entry including its terminating semicolon. Deletions
// yield a nil entry.
func (d *textDecoder) entry() (Entry, error) {
	at := d.in.Position()
	name := d.in.ReadWord()
	if name == "" {
		return nil, d.failNext("expected an entry name")
	}
	switch name {
	case "class":
		return d.class()
	case "delete":
		if err := d.skip(); err != nil {
			return nil, err
		}
		if d.in.ReadWord() == "" {
			return nil, d.failNext("expected a class name after delete")
		}
		return nil, d.expect(';', "after delete")
	}

	if err := d.skip(); err != nil {
		return nil, err
	}
	array := false
	if d.in.Peek() == '[' {
		d.in.Read()
		if err := d.expect(']', "after '['"); err != nil {
			return nil, err
		}
		array = true
		if err := d.skip(); err != nil {
			return nil, err
		}
	}

	opAt := d.in.Position()
	appending := false
	switch c := d.in.Read(); c {
	case '=':
	case '+':
		if d.in.Peek() != '=' {
			return nil, d.failNext("expected '=' after '+'")
		}
		d.in.Read()
		if !array {
			return nil, d.fail(opAt, "'+='", "'+=' is only allowed for arrays")
		}
		appending = true
	default:
		d.in.Unread(c)
		return nil, d.failNext("expected '=' after %s", name)
	}
	if err := d.skip(); err != nil {
		return nil, err
	}

	var e Entry
	if array {
		elems, err := d.array()
		if err != nil {
			return nil, err
		}
		e = &ArrayEntry{Name: name, Elements: elems, Append: appending}
	} else {
		if d.in.Peek() == '{' {
			return nil, d.fail(at, strconv.Quote(name), "array value assigned to %s without []", name)
		}
		v, err := d.value(";")
		if err != nil {
			return nil, err
		}
		e = &ScalarEntry{Name: name, Value: v}
	}
	return e, d.expect(';', "after "+name)
}

func (d *textDecoder) class() (Entry, error) {
	if err := d.skip(); err != nil {
		return nil, err
	}
	name := d.in.ReadWord()
	if name == "" {
		return nil, d.failNext("expected a class name")
	}
	if err := d.skip(); err != nil {
		return nil, err
	}
	if d.in.Peek() == ';' {
		d.in.Read()
		return &ExternEntry{Name: name}, nil
	}

	var parent string
	if d.in.Peek() == ':' {
		d.in.Read()
		if err := d.skip(); err != nil {
			return nil, err
		}
		if parent = d.in.ReadWord(); parent == "" {
			return nil, d.failNext("expected a parent class name for %s", name)
		}
	}
	if err := d.expect('{', "to open class "+name); err != nil {
		return nil, err
	}
	entries, err := d.body(false)
	if err != nil {
		return nil, err
	}
	d.in.Read() // '}'
	if err := d.expect(';', "after class "+name); err != nil {
		return nil, err
	}
	return &SubclassEntry{Name: name, Class: &Class{Name: name, Parent: parent, Entries: entries}}, nil
}

func (d *textDecoder) array() (Array, error) {
	if err := d.expect('{', "to open an array"); err != nil {
		return nil, err
	}
	elems := make(Array, 0)
	for {
		if err := d.skip(); err != nil {
			return nil, err
		}
		if d.in.Peek() == '}' {
			d.in.Read()
			return elems, nil
		}
		var el Element
		var err error
		if d.in.Peek() == '{' {
			el, err = d.array()
		} else {
			el, err = d.value(",};")
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)

		if err := d.skip(); err != nil {
			return nil, err
		}
		switch d.in.Peek() {
		case ',':
			d.in.Read()
		case '}':
			d.in.Read()
			return elems, nil
		default:
			return nil, d.failNext("expected ',' or '}' in array")
		}
	}
}

// value reads a quoted string, a number or a bare word ending before one of
// the runes in stop or the end of the line.
func (d *textDecoder) value(stop string) (Value, error) {
	at := d.in.Position()
	c := d.in.Peek()
	if c == '"' || c == '\'' {
		s, err := d.in.ReadQuoted()
		if err != nil {
			return Value{}, &DecodeError{Format: FormatText, Offset: at, Msg: "unterminated string"}
		}
		return StringValue(s), nil
	}
	if c == stream.EOF || strings.ContainsRune(stop, c) {
		return Value{}, d.failNext("missing value")
	}

	var b strings.Builder
	for {
		c := d.in.Read()
		if c == stream.EOF || c == '\n' || strings.ContainsRune(stop, c) {
			d.in.Unread(c)
			break
		}
		b.WriteRune(c)
	}
	text := strings.TrimSpace(b.String())
	if v, ok := parseNumber(text); ok {
		return v, nil
	}
	return StringValue(text), nil
}

// parseNumber classifies text as a number when the whole of it is a numeric
// literal. Integral values in range become ints.
func parseNumber(text string) (Value, bool) {
	if text == "" {
		return Value{}, false
	}
	r := stream.NewTextReader(strings.NewReader(text))
	if r.ReadNumber() != text {
		return Value{}, false
	}

	unsigned := strings.TrimLeft(text, "+-")
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		u, err := strconv.ParseUint(unsigned[2:], 16, 32)
		if err != nil {
			return Value{}, false
		}
		v := int32(uint32(u))
		if text[0] == '-' {
			v = -v
		}
		return IntValue(v), true
	}

	if i, err := strconv.ParseInt(text, 10, 32); err == nil {
		return IntValue(int32(i)), true
	}
	f, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return Value{}, false
	}
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return IntValue(int32(f)), true
	}
	return FloatValue(float32(f)), true
}
