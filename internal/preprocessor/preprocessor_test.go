package preprocessor

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fwessels/arma-cfg/internal/diag"
)

func TestPreprocess(t *testing.T) {
	for _, tt := range ppTests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor()
			got, res := p.ProcessString(tt.input)
			if res.Aborted {
				t.Fatalf("run aborted: %v", res.Diagnostics)
			}
			if errs := res.Errors(); len(errs) > 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	for _, tt := range fatalTests {
		t.Run(tt.error, func(t *testing.T) {
			p := NewPreprocessor()
			got, res := p.ProcessString(tt.input)
			if !res.Aborted {
				t.Fatalf("expected run to abort with %q", tt.error)
			}
			errs := res.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}
			if diff := cmp.Diff(tt.error, errs[0].Message); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiagnostics(t *testing.T) {
	for _, tt := range diagTests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor()
			got, res := p.ProcessString(tt.input)
			if res.Aborted {
				t.Fatalf("run aborted: %v", res.Diagnostics)
			}
			var msgs []string
			for _, d := range res.Diagnostics {
				msgs = append(msgs, d.Severity.String()+": "+d.Message)
			}
			if diff := cmp.Diff(tt.diagnostics, msgs); diff != "" {
				t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func lines(a ...string) string {
	return strings.Join(a, "\n") + "\n"
}

type ppTest struct {
	name   string
	input  string
	output string
}

var ppTests = []ppTest{
	{
		"empty",
		"",
		"",
	},
	{
		"no directives",
		lines(
			"class CfgPatches {",
			"\tclass main { units[] = {}; name = \"It's \"\"main\"\"\"; };",
			"};",
		),
		lines(
			"class CfgPatches {",
			"\tclass main { units[] = {}; name = \"It's \"\"main\"\"\"; };",
			"};",
		),
	},
	{
		"simple define",
		lines(
			"#define A 1234",
			"A",
		),
		"\n1234\n",
	},
	{
		"define without value",
		"#define A",
		"",
	},
	{
		"macro without arguments",
		"#define A() 1234\n" + "A()\n",
		"\n1234\n",
	},
	{
		"argumented macro invoked without parens",
		"#define F() x\n" + "F\n",
		"\nx\n",
	},
	{
		"call syntax on object-like macro",
		"#define M 5\n" + "M()\n",
		"\n5()\n",
	},
	{
		"macro with arguments",
		"#define A(x, y, z) x+z+y\n" + "A(1, 2, 3)\n",
		"\n1+ 3+ 2\n",
	},
	{
		"nested parens in arguments",
		"#define F(a,b) b a\n" + "F((1,2),3)\n",
		"\n3 (1,2)\n",
	},
	{
		"stringification",
		"#define S(x) #x\n" + "S(foo)\n",
		"\n\"foo\"\n",
	},
	{
		"stringification keeps raw argument",
		"#define A 1\n" + "#define S(x) #x x\n" + "S(A)\n",
		"\n\n\"A\" 1\n",
	},
	{
		"token pasting",
		"#define C(a,b) a##b\n" + "C(fo,o)\n",
		"\nfoo\n",
	},
	{
		"pasting in object-like macro",
		"#define P a##b\n" + "P\n",
		"\nab\n",
	},
	{
		"pasted result is rescanned",
		lines(
			"#define foo 42",
			"#define C(a,b) a##b",
			"C(fo,o)",
		),
		"\n\n42\n",
	},
	{
		"nested macros with forward reference",
		lines(
			"#define ADDON foo",
			"#define GVAR(v) DOUBLES(ADDON,v)",
			"#define DOUBLES(a,b) a##_##b",
			"GVAR(bar)",
		),
		"\n\n\nfoo_bar\n",
	},
	{
		"recursive macro is not re-expanded",
		"#define A A B\n" + "A\n",
		"\nA B\n",
	},
	{
		"mutually recursive macros",
		lines(
			"#define A B",
			"#define B A",
			"A B",
		),
		"\n\nA B\n",
	},
	{
		"strings are not expanded",
		"#define A 1\n" + "\"A\" 'A' A\n",
		"\n\"A\" 'A' 1\n",
	},
	{
		"whole words only",
		"#define A 1\n" + "A AB _A A_ A1 A\n",
		"\n1 AB _A A_ A1 1\n",
	},
	{
		"multiline macro",
		lines(
			"#define A 1\\",
			"\t2\\",
			"\t3",
			"before",
			"A",
			"after",
		),
		"\n\n\nbefore\n1\t2\t3\nafter\n",
	},
	{
		"comment after define",
		"#define A 1 // one\n" + "A\n",
		"// one\n1\n",
	},
	{
		"block comment in define",
		"#define A 1/* one\ntwo */2\n" + "A\n",
		"\n\n1 2\n",
	},
	{
		"undef",
		lines(
			"#define A 1",
			"#undef A",
			"A",
		),
		"\n\nA\n",
	},
	{
		"taken #ifdef",
		lines(
			"#define A",
			"#ifdef A",
			"#define B 1234",
			"#endif",
			"B",
		),
		"\n\n\n\n1234\n",
	},
	{
		"not taken #ifdef",
		lines(
			"#ifdef A",
			"x",
			"#endif",
			"y",
		),
		"\n\n\ny\n",
	},
	{
		"#ifdef with else on directive lines",
		lines(
			"#define BLA",
			"#ifdef BLA X",
			"#else Y",
			"#endif",
		),
		"\n X\n\n\n",
	},
	{
		"#ifndef with else on directive lines",
		lines(
			"#define BLA",
			"#ifndef BLA X",
			"#else Y",
			"#endif",
		),
		"\n Y\n\n\n",
	},
	{
		"not taken #ifdef with else",
		lines(
			"#ifdef A",
			"#define B 1234",
			"#else",
			"#define B 5678",
			"#endif",
			"B",
		),
		"\n\n\n\n\n5678\n",
	},
	{
		"indented directive",
		"  #define A 1\n" + "  A\n",
		"\n  1\n",
	},
	{
		"crlf line endings",
		"#define A 1\r\n" + "A\r\n" + "B",
		"\r\n1\r\nB",
	},
	{
		"crlf applies to continuation lines",
		"x\r\n#define A 1\\\r\n2\r\nA",
		"x\r\n\r\n\r\n12",
	},
}

type fatalTest struct {
	input  string
	error  string
	output string
}

var fatalTests = []fatalTest{
	{
		"a\n\"open",
		"unterminated string",
		"a\n\"open",
	},
	{
		"a\n#else\nb\n",
		"#else without #ifdef or #ifndef",
		"a\n",
	},
	{
		"#endif",
		"#endif without #ifdef or #ifndef",
		"",
	},
	{
		"a\n#foo\nb\n",
		"unknown directive #foo",
		"a\n",
	},
	{
		"#ifdef A\n#ifdef B\n#endif\n#endif\n",
		"nested #ifdef is not supported",
		"",
	},
	{
		"#ifdef A\n#else\n#else\n#endif\n",
		"#else after #else",
		"",
	},
	{
		"# define A 1\nA\n",
		"white space between '#' and directive",
		"",
	},
}

type diagTest struct {
	name        string
	input       string
	output      string
	diagnostics []string
}

var diagTests = []diagTest{
	{
		"arity mismatch",
		"#define M(a,b) a+b\n" + "M(1)",
		"\n",
		[]string{"error: invalid number of arguments for macro M: expected 2, got 1"},
	},
	{
		"redefinition",
		"#define A 1\n" + "#define A 2\n" + "A",
		"\n\n2",
		[]string{"warning: macro A redefined"},
	},
	{
		"undef of unknown macro",
		"#undef A\n" + "A",
		"\nA",
		[]string{"warning: #undef of undefined macro A"},
	},
	{
		"malformed parameter list",
		"#define F(a,,b) x\n" + "F(1)\n",
		"\n\n",
		[]string{"error: malformed parameter list of macro F"},
	},
	{
		"unterminated ifdef",
		"#ifdef A\n" + "x\n",
		"\n\n",
		[]string{"error: unterminated #ifdef A"},
	},
	{
		"unterminated call at end of input",
		"#define F(a,b) a\n" + "F(1",
		"\n",
		[]string{"error: invalid number of arguments for macro F: expected 2, got 1"},
	},
	{
		"include without resolver",
		"#include \"x.hpp\"\n" + "y",
		"\ny",
		[]string{"error: cannot include \"x.hpp\": no path resolver configured"},
	},
}

func TestTolerantWhitespace(t *testing.T) {
	p := NewPreprocessor()
	p.Options.Whitespace = Tolerant
	got, res := p.ProcessString("# define A 1\nA\n")
	if diff := cmp.Diff("\n1\n", got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Severity != diag.Warning {
		t.Errorf("expected a single warning, got %v", res.Diagnostics)
	}
}

func TestCommentHandling(t *testing.T) {
	input := "a // c\nb /* x\ny */ c\n"
	tests := []struct {
		handling CommentHandling
		output   string
	}{
		{KeepComments, input},
		{KeepInline, "a // c\nb \n c\n"},
		{KeepBlock, "a \nb /* x\ny */ c\n"},
		{RemoveComments, "a \nb \n c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.handling.String(), func(t *testing.T) {
			p := NewPreprocessor()
			p.Options.Comments = tt.handling
			got, _ := p.ProcessString(input)
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBugReproduction(t *testing.T) {
	input := "#define F(a,b) a\n" + "F(1"
	for _, tt := range []struct {
		bugs   BugReproduction
		output string
	}{
		{BugsOff, "\n"},
		{BugsArma, "\n)"},
	} {
		p := NewPreprocessor()
		p.Options.Bugs = tt.bugs
		got, _ := p.ProcessString(input)
		if diff := cmp.Diff(tt.output, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.bugs, diff)
		}
	}
}

func TestPredefinedMacros(t *testing.T) {
	p := NewPreprocessor()
	p.Define("VERSION", nil, "2")
	p.Define("Q", []string{"x"}, "#x")

	got, _ := p.ProcessString("#define LOCAL 1\nVERSION Q(v)\n")
	if diff := cmp.Diff("\n2 \"v\"\n", got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if m := p.Macros()["LOCAL"]; m == nil || m.Body != "1" {
		t.Fatalf("expected LOCAL in macro table, got %v", m)
	}

	// Macros defined by a run do not leak into the next one.
	got, _ = p.ProcessString("LOCAL VERSION")
	if diff := cmp.Diff("LOCAL 2", got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

type recorder struct {
	errors, warnings []string
}

func (r *recorder) OnError(msg string, start, length int)   { r.errors = append(r.errors, msg) }
func (r *recorder) OnWarning(msg string, start, length int) { r.warnings = append(r.warnings, msg) }

func TestListeners(t *testing.T) {
	p := NewPreprocessor()
	rec := &recorder{}
	p.AddListener(rec)
	p.ProcessString("#define A 1\n#define A 2\n#undef B\n#foo\n")
	if diff := cmp.Diff([]string{"macro A redefined", "#undef of undefined macro B"}, rec.warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"unknown directive #foo"}, rec.errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}

	p.RemoveListener(rec)
	p.ProcessString("#undef C")
	if len(rec.warnings) != 2 {
		t.Errorf("removed listener still notified: %v", rec.warnings)
	}
}

func TestDiagnosticPosition(t *testing.T) {
	p := NewPreprocessor()
	_, res := p.ProcessString("x\n#define M(a) a\nM(1,2)\n")
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Start != 17 || d.Length != 6 {
		t.Errorf("got start %d length %d, want 17 and 6", d.Start, d.Length)
	}
}

func TestInclude(t *testing.T) {
	files := map[string]string{
		"/addons/main/script_macros.hpp": "#define X 42\n",
		"/addons/main/sub/outer.hpp":     "#include \"inner.hpp\"\n",
		"/addons/main/sub/inner.hpp":     "INNER X",
		"/addons/main/cycle.hpp":         "#include \"cycle.hpp\"\nC\n",
		"/addons/main/bad.hpp":           "#foo\n",
	}
	tests := []struct {
		name   string
		input  string
		output string
		errors []string
	}{
		{
			"macros from include",
			"#include \"script_macros.hpp\"\nX\n",
			"\n\n42\n",
			nil,
		},
		{
			"nested include resolves against included file",
			"#include \"script_macros.hpp\"\n#include \"sub\\outer.hpp\"\n",
			"\n\nINNER 42\n\n",
			nil,
		},
		{
			"absolute include",
			"#include \"\\addons\\main\\sub\\inner.hpp\"",
			"INNER X",
			nil,
		},
		{
			"include cycle",
			"#include \"cycle.hpp\"",
			"\nC\n",
			[]string{"include cycle detected at \"cycle.hpp\""},
		},
		{
			"missing include",
			"#include \"nope.hpp\"\nok",
			"\nok",
			[]string{"cannot resolve include \"nope.hpp\""},
		},
		{
			"fatal error inside include",
			"#include \"bad.hpp\"\nafter\n",
			"\nafter\n",
			[]string{"bad.hpp: unknown directive #foo"},
		},
		{
			"angle brackets",
			"#include <script_macros.hpp>\nX",
			"\n\n42",
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewMapResolver(files)
			if err := res.SetCurrentRoot("/addons/main"); err != nil {
				t.Fatal(err)
			}
			p := NewPreprocessor()
			p.Resolver = res
			got, result := p.ProcessString(tt.input)
			if result.Aborted {
				t.Fatalf("run aborted: %v", result.Diagnostics)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			var errs []string
			for _, d := range result.Errors() {
				errs = append(errs, d.Message)
			}
			if diff := cmp.Diff(tt.errors, errs); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
			if root := res.CurrentRoot(); root != "/addons/main" {
				t.Errorf("root not restored: %q", root)
			}
		})
	}
}

func TestParseDefine(t *testing.T) {
	tests := []struct {
		in, name, value string
	}{
		{"A=1", "A", "1"},
		{"B", "B", "1"},
		{"C=", "C", ""},
		{"D=a=b", "D", "a=b"},
	}
	for _, tt := range tests {
		name, value := ParseDefine(tt.in)
		if name != tt.name || value != tt.value {
			t.Errorf("ParseDefine(%q) = %q, %q; want %q, %q", tt.in, name, value, tt.name, tt.value)
		}
	}
}
