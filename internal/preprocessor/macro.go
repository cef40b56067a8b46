package preprocessor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fwessels/arma-cfg/internal/stream"
)

// pasteMarker replaces ## while parameters are substituted, so that no
// parameter name can be matched across a paste. It is removed before the
// result is rescanned.
const pasteMarker = "\x00"

// Macro is a single #define.
type Macro struct {
	Name string
	// Params is nil for an object-like macro. A non-nil empty slice is an
	// explicitly empty parameter list, as in "#define F() body".
	Params []string
	Body   string
	// Valid is false when the parameter list could not be parsed. An invalid
	// macro expands to nothing.
	Valid bool

	// wellFormedUse tracks whether the most recent use matched the
	// definition; the end-of-input quirk depends on it.
	wellFormedUse bool
}

// Table maps macro names to their definitions.
type Table map[string]*Macro

func NewMacro(name string, params []string, body string) *Macro {
	return &Macro{Name: name, Params: params, Body: body, Valid: true, wellFormedUse: true}
}

// FunctionLike reports whether the macro declares a parameter list.
func (m *Macro) FunctionLike() bool {
	return m.Params != nil
}

func (m *Macro) String() string {
	if m.Params == nil {
		return fmt.Sprintf("#define %s %s", m.Name, m.Body)
	}
	return fmt.Sprintf("#define %s(%s) %s", m.Name, strings.Join(m.Params, ","), m.Body)
}

// Clone returns a copy of the table with copied definitions.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for name, m := range t {
		cp := *m
		c[name] = &cp
	}
	return c
}

// Expansion is the result of expanding one macro use.
type Expansion struct {
	Text string
	// OK is false when the use itself was malformed. Problems found while
	// expanding nested macros are reported in Problems without clearing OK.
	OK       bool
	Problems []string
}

// Expand substitutes args into the macro body and expands every macro the
// result refers to, looking definitions up in table. A macro is never
// expanded again inside its own expansion.
//
// followedByEOF marks a use that ran into the end of the input; with
// reproduceBugs set, a malformed use there yields a stray ")".
//
// Expand panics if args are given to an object-like macro.
func (m *Macro) Expand(args []string, table Table, followedByEOF, reproduceBugs bool) Expansion {
	e := &expander{table: table, reproduceBugs: reproduceBugs, active: map[string]bool{}}
	text, ok := e.expandMacro(m, args, followedByEOF)
	return Expansion{Text: text, OK: ok, Problems: e.problems}
}

type expander struct {
	table         Table
	reproduceBugs bool
	active        map[string]bool
	problems      []string
	stack         []inputChunk
}

type inputChunk struct {
	s string
	i int
}

func (e *expander) expandMacro(m *Macro, args []string, followedByEOF bool) (string, bool) {
	if m.Params == nil && len(args) > 0 {
		panic(fmt.Sprintf("preprocessor: macro %s takes no argument list but got %d argument(s)", m.Name, len(args)))
	}
	m.wellFormedUse = true
	if !m.Valid {
		m.wellFormedUse = false
		return e.malformed(m, followedByEOF), false
	}
	if len(m.Params) == 0 && len(args) == 1 && args[0] == "" {
		args = nil
	}
	if len(args) != len(m.Params) {
		m.wellFormedUse = false
		e.problems = append(e.problems, fmt.Sprintf("invalid number of arguments for macro %s: expected %d, got %d", m.Name, len(m.Params), len(args)))
		return e.malformed(m, followedByEOF), false
	}

	body := strings.ReplaceAll(m.Body, "##", pasteMarker)
	if len(m.Params) > 0 {
		body = e.substitute(body, m.Params, args)
	}
	body = strings.ReplaceAll(body, pasteMarker, "")

	e.active[m.Name] = true
	out := e.expandText(body)
	delete(e.active, m.Name)
	return out, true
}

func (e *expander) malformed(m *Macro, followedByEOF bool) string {
	if e.reproduceBugs && followedByEOF && !m.wellFormedUse {
		return ")"
	}
	return ""
}

// substitute replaces #param by the quoted raw argument and param by the
// fully expanded argument. Quoted strings in the body are left alone.
func (e *expander) substitute(body string, params, args []string) string {
	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p] = i
	}
	expanded := make([]*string, len(args))
	arg := func(i int) string {
		if expanded[i] == nil {
			s := e.expandText(args[i])
			expanded[i] = &s
		}
		return *expanded[i]
	}

	var b strings.Builder
	for i := 0; i < len(body); {
		c, n := utf8.DecodeRuneInString(body[i:])
		switch {
		case c == '"' || c == '\'':
			j := quotedEnd(body, i)
			b.WriteString(body[i:j])
			i = j
		case c == '#':
			j := wordEnd(body, i+n)
			if k, ok := index[body[i+n:j]]; ok {
				b.WriteString(`"` + args[k] + `"`)
				i = j
				continue
			}
			b.WriteRune(c)
			i += n
		case stream.IsWordRune(c):
			j := wordEnd(body, i)
			if k, ok := index[body[i:j]]; ok {
				b.WriteString(arg(k))
			} else {
				b.WriteString(body[i:j])
			}
			i = j
		default:
			b.WriteRune(c)
			i += n
		}
	}
	return b.String()
}

// expandText expands every macro use in s.
func (e *expander) expandText(s string) string {
	saved := e.stack
	e.stack = []inputChunk{{s: s}}
	defer func() { e.stack = saved }()

	var b strings.Builder
	for {
		c := e.Read()
		switch {
		case c == stream.EOF:
			return b.String()
		case c == '"' || c == '\'':
			b.WriteRune(c)
			copyQuoted(e, &b, c)
		case stream.IsWordRune(c):
			e.Unread(c)
			b.WriteString(e.expandWord(readWord(e)))
		default:
			b.WriteRune(c)
		}
	}
}

func (e *expander) expandWord(word string) string {
	m, ok := e.table[word]
	if !ok || e.active[word] {
		return word
	}
	var args []string
	if m.FunctionLike() {
		if c := e.Read(); c == '(' {
			args, _ = readArgs(e)
		} else {
			e.Unread(c)
		}
	}
	text, _ := e.expandMacro(m, args, false)
	return text
}

func (e *expander) Read() rune {
	for len(e.stack) > 0 {
		top := &e.stack[len(e.stack)-1]
		if top.i >= len(top.s) {
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		c, n := utf8.DecodeRuneInString(top.s[top.i:])
		top.i += n
		return c
	}
	return stream.EOF
}

func (e *expander) Unread(c rune) {
	if c == stream.EOF {
		return
	}
	e.stack = append(e.stack, inputChunk{s: string(c)})
}

// runeSource is what the argument and word scanners read from: the main
// input of a run or the text of an expansion.
type runeSource interface {
	Read() rune
	Unread(c rune)
}

func readWord(src runeSource) string {
	var b strings.Builder
	for {
		c := src.Read()
		if c == stream.EOF || !stream.IsWordRune(c) {
			src.Unread(c)
			return b.String()
		}
		b.WriteRune(c)
	}
}

// readArgs reads a macro argument list whose '(' has been consumed. Commas
// inside nested parentheses or quotes do not split arguments. If the input
// ends first, the arguments seen so far are returned with terminated unset.
func readArgs(src runeSource) (args []string, terminated bool) {
	var cur strings.Builder
	depth := 0
	for {
		c := src.Read()
		switch {
		case c == stream.EOF:
			return append(args, cur.String()), false
		case c == '"' || c == '\'':
			cur.WriteRune(c)
			copyQuoted(src, &cur, c)
		case c == '(':
			depth++
			cur.WriteRune(c)
		case c == ')':
			if depth == 0 {
				return append(args, cur.String()), true
			}
			depth--
			cur.WriteRune(c)
		case c == ',' && depth == 0:
			args = append(args, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
}

// copyQuoted copies the rest of a quoted string, closing quote included.
func copyQuoted(src runeSource, b *strings.Builder, quote rune) {
	for {
		c := src.Read()
		if c == stream.EOF {
			src.Unread(c)
			return
		}
		b.WriteRune(c)
		if c == quote {
			return
		}
	}
}

func wordEnd(s string, i int) int {
	for i < len(s) {
		c, n := utf8.DecodeRuneInString(s[i:])
		if !stream.IsWordRune(c) {
			break
		}
		i += n
	}
	return i
}

func quotedEnd(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] == q {
			return j + 1
		}
	}
	return len(s)
}

// ParseDefine splits a command line definition of the form NAME=value.
// A bare NAME is defined as 1.
func ParseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}
