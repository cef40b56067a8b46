// Package preprocessor implements the C-like preprocessor Arma applies to
// config sources: #define with stringification and token pasting, #undef,
// #ifdef and #ifndef with one #else, and #include through a PathResolver.
package preprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fwessels/arma-cfg/internal/diag"
	"github.com/fwessels/arma-cfg/internal/stream"
)

type Preprocessor struct {
	Options  Options
	Resolver PathResolver
	Logger   *slog.Logger

	sink       diag.Sink
	predefined Table
	macros     Table
}

// Result describes a finished run. Aborted is set when a fatal error
// stopped the top-level input early; the output written up to that point
// is still delivered.
type Result struct {
	Diagnostics []diag.Diagnostic
	Aborted     bool
}

func (r *Result) Errors() []diag.Diagnostic {
	var errs []diag.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == diag.Error {
			errs = append(errs, d)
		}
	}
	return errs
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		predefined: Table{},
		macros:     Table{},
	}
}

func (p *Preprocessor) AddListener(l diag.Listener) {
	p.sink.Add(l)
}

func (p *Preprocessor) RemoveListener(l diag.Listener) {
	p.sink.Remove(l)
}

// Define predefines a macro for every following run. Pass nil params for an
// object-like macro.
func (p *Preprocessor) Define(name string, params []string, body string) {
	if p.predefined == nil {
		p.predefined = Table{}
	}
	p.predefined[name] = NewMacro(name, params, body)
}

// Macros returns the macro table left behind by the last run.
func (p *Preprocessor) Macros() Table {
	return p.macros.Clone()
}

func (p *Preprocessor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// ProcessString preprocesses src and returns the output.
func (p *Preprocessor) ProcessString(src string) (string, *Result) {
	var out strings.Builder
	res, _ := p.Process(strings.NewReader(src), &out)
	return out.String(), res
}

// Process preprocesses r and writes the output to w. Problems in the input
// are reported as diagnostics; the returned error is reserved for failures
// to read r or write w.
func (p *Preprocessor) Process(r io.Reader, w io.Writer) (*Result, error) {
	var col diag.Collector
	p.sink.Add(&col)
	defer p.sink.Remove(&col)

	run := &run{
		p:         p,
		in:        stream.NewTextReader(r),
		macros:    p.predefined.Clone(),
		including: map[string]bool{},
		log:       p.logger(),
	}
	res := &Result{}
	if err := run.unit(); err != nil {
		run.reportFatal(err, "")
		res.Aborted = true
	}
	p.macros = run.macros
	res.Diagnostics = col.Diagnostics

	if err := run.in.Err(); err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}
	if _, err := w.Write(run.out.Bytes()); err != nil {
		return res, err
	}
	return res, nil
}

// fatalError stops the current logical unit: the top-level input or one
// included file.
type fatalError struct {
	msg           string
	start, length int
}

func (e *fatalError) Error() string { return e.msg }

type run struct {
	p         *Preprocessor
	in        *stream.TextReader
	out       bytes.Buffer
	macros    Table
	crlf      bool
	including map[string]bool
	log       *slog.Logger
}

func (r *run) fatal(msg string, start, length int) error {
	return &fatalError{msg: msg, start: start, length: length}
}

func (r *run) reportFatal(err error, file string) {
	var fe *fatalError
	if !errors.As(err, &fe) {
		r.p.sink.Error(err.Error(), r.in.Position(), 0)
		return
	}
	msg := fe.msg
	if file != "" {
		msg = fmt.Sprintf("%s: %s", file, msg)
	}
	r.p.sink.Error(msg, fe.start, fe.length)
}

func (r *run) errorf(start, length int, format string, args ...any) {
	r.p.sink.Error(fmt.Sprintf(format, args...), start, length)
}

func (r *run) warnf(start, length int, format string, args ...any) {
	r.p.sink.Warning(fmt.Sprintf(format, args...), start, length)
}

// next reads a rune, dropping carriage returns. Seeing one switches the
// output to CRLF line endings.
func (r *run) next() rune {
	c := r.in.Read()
	if c == '\r' {
		r.crlf = true
		c = r.in.Read()
	}
	return c
}

func (r *run) Read() rune    { return r.next() }
func (r *run) Unread(c rune) { r.in.Unread(c) }
func (r *run) pos() int      { return r.in.Position() }

func (r *run) peek() rune {
	c := r.next()
	r.in.Unread(c)
	return c
}

func isBlank(c rune) bool {
	return c != '\n' && c != stream.EOF && unicode.IsSpace(c)
}

func (r *run) emitRune(c rune) {
	if c == '\n' {
		r.emitNewline()
		return
	}
	r.out.WriteRune(c)
}

func (r *run) emitNewline() {
	if r.crlf {
		r.out.WriteString("\r\n")
		return
	}
	r.out.WriteByte('\n')
}

func (r *run) emit(s string) {
	if r.crlf && strings.Contains(s, "\n") {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	r.out.WriteString(s)
}

func (r *run) skipBlanks() {
	for {
		c := r.next()
		if !isBlank(c) {
			r.in.Unread(c)
			return
		}
	}
}

// skipLine consumes the rest of the line, leaving the newline.
func (r *run) skipLine() {
	for {
		c := r.next()
		if c == '\n' || c == stream.EOF {
			r.in.Unread(c)
			return
		}
	}
}

// unit processes the current input to its end.
func (r *run) unit() error {
	lineStart := true
	var indent strings.Builder
	for {
		c := r.next()
		if c == stream.EOF {
			r.emit(indent.String())
			return nil
		}
		if c == '\n' {
			r.emit(indent.String())
			indent.Reset()
			r.emitNewline()
			lineStart = true
			continue
		}
		if lineStart {
			if isBlank(c) {
				indent.WriteRune(c)
				continue
			}
			lineStart = false
			if c == '#' {
				indent.Reset()
				if err := r.directive(); err != nil {
					return err
				}
				continue
			}
			r.emit(indent.String())
			indent.Reset()
		}
		if err := r.token(c); err != nil {
			return err
		}
	}
}

func (r *run) token(c rune) error {
	switch {
	case c == '"' || c == '\'':
		return r.copyString(c)
	case c == '/':
		switch n := r.next(); n {
		case '/':
			r.lineComment()
		case '*':
			r.blockComment()
		default:
			r.in.Unread(n)
			r.out.WriteByte('/')
		}
	case stream.IsWordRune(c):
		start := r.pos() - 1
		r.in.Unread(c)
		r.word(r.in.ReadWord(), start)
	default:
		r.emitRune(c)
	}
	return nil
}

func (r *run) copyString(quote rune) error {
	start := r.pos() - 1
	r.emitRune(quote)
	for {
		c := r.next()
		if c == stream.EOF {
			return r.fatal("unterminated string", start, r.pos()-start)
		}
		r.emitRune(c)
		if c == quote {
			if r.peek() != quote {
				return nil
			}
			r.emitRune(r.next())
		}
	}
}

func (r *run) lineComment() {
	var b strings.Builder
	for {
		c := r.next()
		if c == '\n' || c == stream.EOF {
			r.in.Unread(c)
			break
		}
		b.WriteRune(c)
	}
	if r.p.Options.Comments.keepInline() {
		r.out.WriteString("//")
		r.out.WriteString(b.String())
	}
}

func (r *run) blockComment() {
	keep := r.p.Options.Comments.keepBlock()
	if keep {
		r.out.WriteString("/*")
	}
	for {
		c := r.next()
		switch {
		case c == stream.EOF:
			return
		case c == '*' && r.peek() == '/':
			r.next()
			if keep {
				r.out.WriteString("*/")
			}
			return
		case keep || c == '\n':
			r.emitRune(c)
		}
	}
}

// word handles an identifier or number in running text.
func (r *run) word(name string, start int) {
	m, ok := r.macros[name]
	if !ok {
		r.emit(name)
		return
	}
	var args []string
	followedByEOF := false
	if m.FunctionLike() {
		c := r.next()
		if c == '(' {
			var terminated bool
			args, terminated = readArgs(r)
			followedByEOF = !terminated
		} else {
			r.in.Unread(c)
			followedByEOF = c == stream.EOF
		}
	}
	exp := m.Expand(args, r.macros, followedByEOF, r.p.Options.Bugs == BugsArma)
	for _, msg := range exp.Problems {
		r.errorf(start, r.pos()-start, "%s", msg)
	}
	r.emit(exp.Text)
}

func (r *run) directive() error {
	start := r.pos() - 1
	if c := r.next(); isBlank(c) {
		if r.p.Options.Whitespace == Strict {
			return r.fatal("white space between '#' and directive", start, 2)
		}
		r.warnf(start, 2, "white space between '#' and directive")
		r.skipBlanks()
	} else {
		r.in.Unread(c)
	}
	keyword := r.in.ReadWord()
	r.skipBlanks()

	switch keyword {
	case "define":
		r.define(start)
	case "undef":
		r.undef(start)
	case "ifdef":
		return r.conditional(start, keyword, true)
	case "ifndef":
		return r.conditional(start, keyword, false)
	case "include":
		return r.include(start)
	case "else", "endif":
		return r.fatal(fmt.Sprintf("#%s without #ifdef or #ifndef", keyword), start, r.pos()-start)
	case "":
		return r.fatal("missing directive after '#'", start, 1)
	default:
		return r.fatal(fmt.Sprintf("unknown directive #%s", keyword), start, r.pos()-start)
	}
	return nil
}

func (r *run) define(start int) {
	name := r.in.ReadWord()
	if name == "" {
		r.errorf(start, r.pos()-start, "#define without macro name")
		r.skipLine()
		return
	}
	var params []string
	valid := true
	if c := r.next(); c == '(' {
		params, valid = r.readParams()
		if !valid {
			r.errorf(start, r.pos()-start, "malformed parameter list of macro %s", name)
		}
	} else {
		r.in.Unread(c)
	}
	r.skipBlanks()
	body := r.readBody()

	if _, exists := r.macros[name]; exists {
		r.warnf(start, r.pos()-start, "macro %s redefined", name)
	}
	m := NewMacro(name, params, body)
	m.Valid = valid
	r.macros[name] = m
	r.log.Debug("macro defined", "name", name, "params", len(params), "valid", valid)
}

// readParams reads a parameter list whose '(' has been consumed. On a
// malformed list it skips to the closing parenthesis or the end of line.
func (r *run) readParams() ([]string, bool) {
	params := []string{}
	seen := map[string]bool{}
	r.skipBlanks()
	if r.peek() == ')' {
		r.next()
		return params, true
	}
	for {
		r.skipBlanks()
		p := r.in.ReadWord()
		if p == "" || unicode.IsDigit([]rune(p)[0]) || seen[p] {
			r.skipParams()
			return params, false
		}
		seen[p] = true
		params = append(params, p)
		r.skipBlanks()
		switch c := r.next(); c {
		case ',':
		case ')':
			return params, true
		default:
			r.in.Unread(c)
			r.skipParams()
			return params, false
		}
	}
}

func (r *run) skipParams() {
	for {
		c := r.next()
		switch c {
		case ')':
			return
		case '\n', stream.EOF:
			r.in.Unread(c)
			return
		}
	}
}

// readBody reads a macro body to the end of the line. A backslash before
// the newline continues the body; the newline is still written to the
// output so line numbers stay intact. A // comment ends the body and is
// left for the caller.
func (r *run) readBody() string {
	var b strings.Builder
	for {
		c := r.next()
		switch c {
		case stream.EOF:
			return trimBody(b.String())
		case '\n':
			r.in.Unread(c)
			return trimBody(b.String())
		case '\\':
			if n := r.next(); n == '\n' {
				r.emitNewline()
				continue
			} else {
				r.in.Unread(n)
			}
			b.WriteRune(c)
		case '"', '\'':
			b.WriteRune(c)
			for {
				d := r.next()
				if d == '\n' || d == stream.EOF {
					r.in.Unread(d)
					break
				}
				b.WriteRune(d)
				if d == c {
					break
				}
			}
		case '/':
			switch n := r.next(); n {
			case '/':
				r.in.Unread('/')
				r.in.Unread('/')
				return trimBody(b.String())
			case '*':
				r.bodyComment()
				b.WriteByte(' ')
			default:
				r.in.Unread(n)
				b.WriteRune(c)
			}
		default:
			b.WriteRune(c)
		}
	}
}

// bodyComment drops a block comment inside a macro body, keeping its line
// breaks in the output.
func (r *run) bodyComment() {
	for {
		c := r.next()
		switch {
		case c == stream.EOF:
			return
		case c == '*' && r.peek() == '/':
			r.next()
			return
		case c == '\n':
			r.emitNewline()
		}
	}
}

func trimBody(s string) string {
	return strings.TrimRightFunc(s, isBlank)
}

func (r *run) undef(start int) {
	name := r.in.ReadWord()
	switch {
	case name == "":
		r.errorf(start, r.pos()-start, "#undef without macro name")
	case r.macros[name] == nil:
		r.warnf(start, r.pos()-start, "#undef of undefined macro %s", name)
	default:
		delete(r.macros, name)
	}
	r.skipLine()
}

// conditional captures an #ifdef or #ifndef block up to its #endif, then
// pushes the kept half back into the input. The dropped half's line breaks
// are appended to it so the output keeps the input's line count. Directives
// in the captured text run only once the kept half is read again.
func (r *run) conditional(start int, keyword string, wantDefined bool) error {
	name := r.in.ReadWord()
	if name == "" {
		r.errorf(start, r.pos()-start, "#%s without macro name", keyword)
	}
	taken := (r.macros[name] != nil) == wantDefined

	var halves [2]strings.Builder
	cur := 0
	lineStart := false
	var lead strings.Builder
capture:
	for {
		c := r.next()
		if c == stream.EOF {
			r.errorf(start, r.pos()-start, "unterminated #%s %s", keyword, name)
			break
		}
		if lineStart {
			if isBlank(c) {
				lead.WriteRune(c)
				continue
			}
			lineStart = false
			if c == '#' {
				at := r.pos() - 1
				var gap strings.Builder
				for {
					d := r.next()
					if !isBlank(d) {
						r.in.Unread(d)
						break
					}
					gap.WriteRune(d)
				}
				kw := r.in.ReadWord()
				switch kw {
				case "else":
					if cur == 1 {
						return r.fatal("#else after #else", at, r.pos()-at)
					}
					cur = 1
					lead.Reset()
					continue
				case "endif":
					r.skipLine()
					break capture
				case "ifdef", "ifndef":
					return r.fatal(fmt.Sprintf("nested #%s is not supported", kw), at, r.pos()-at)
				}
				halves[cur].WriteString(lead.String())
				halves[cur].WriteByte('#')
				halves[cur].WriteString(gap.String())
				halves[cur].WriteString(kw)
				lead.Reset()
				continue
			}
			halves[cur].WriteString(lead.String())
			lead.Reset()
		}
		halves[cur].WriteRune(c)
		if c == '\n' {
			lineStart = true
		}
	}

	keep, drop := halves[0].String(), halves[1].String()
	if !taken {
		keep, drop = drop, keep
	}
	r.in.UnreadString(keep + strings.Repeat("\n", strings.Count(drop, "\n")))
	return nil
}

func (r *run) include(start int) error {
	var file string
	switch c := r.next(); c {
	case '"':
		r.in.Unread(c)
		s, err := r.in.ReadQuoted()
		if err != nil {
			return r.fatal("unterminated #include path", start, r.pos()-start)
		}
		file = s
	case '<':
		var b strings.Builder
		for d := r.next(); d != '>'; d = r.next() {
			if d == '\n' || d == stream.EOF {
				r.in.Unread(d)
				return r.fatal("unterminated #include path", start, r.pos()-start)
			}
			b.WriteRune(d)
		}
		file = b.String()
	default:
		r.in.Unread(c)
		r.skipLine()
		r.errorf(start, r.pos()-start, "#include expects a quoted path")
		return nil
	}
	r.skipLine()
	r.includeFile(file, start, r.pos()-start)
	return nil
}

// includeFile preprocesses an included file into the output, sharing the
// macro table. A fatal error inside the file ends only that file.
func (r *run) includeFile(file string, start, length int) {
	res := r.p.Resolver
	if res == nil {
		r.errorf(start, length, "cannot include %q: no path resolver configured", file)
		return
	}
	loc, ok := res.Resolve(file)
	if !ok || !res.IsFile(file) {
		r.errorf(start, length, "cannot resolve include %q", file)
		return
	}
	if r.including[loc] {
		r.errorf(start, length, "include cycle detected at %q", file)
		return
	}
	rc, err := res.Open(file)
	if err != nil {
		r.errorf(start, length, "include %q: %v", file, err)
		return
	}
	defer rc.Close()
	r.log.Debug("including file", "path", file, "location", loc)

	prevRoot := res.CurrentRoot()
	if err := res.SetCurrentRoot(filepath.Dir(loc)); err != nil {
		r.log.Debug("keeping include root", "root", prevRoot, "error", err)
	}
	defer func() {
		if err := res.SetCurrentRoot(prevRoot); err != nil {
			r.log.Warn("restoring include root", "root", prevRoot, "error", err)
		}
	}()
	r.including[loc] = true
	defer delete(r.including, loc)

	saved := r.in
	r.in = stream.NewTextReader(rc)
	defer func() { r.in = saved }()

	if err := r.unit(); err != nil {
		r.reportFatal(err, file)
	}
	if err := r.in.Err(); err != nil {
		r.errorf(start, length, "include %q: %v", file, err)
	}
}
