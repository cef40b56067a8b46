package preprocessor

import (
	"fmt"
	"strings"
)

// WhitespaceHandling decides what happens to white space between '#' and
// the directive keyword.
type WhitespaceHandling int

const (
	Strict WhitespaceHandling = iota
	Tolerant
)

// BugReproduction selects whether known quirks of the game's own
// preprocessor are reproduced.
type BugReproduction int

const (
	BugsOff BugReproduction = iota
	BugsArma
)

// CommentHandling selects which comments survive preprocessing.
type CommentHandling int

const (
	KeepComments CommentHandling = iota
	KeepInline
	KeepBlock
	RemoveComments
)

// Options configures one preprocessor run.
type Options struct {
	Whitespace WhitespaceHandling
	Bugs       BugReproduction
	Comments   CommentHandling
}

func (c CommentHandling) keepInline() bool {
	return c == KeepComments || c == KeepInline
}

func (c CommentHandling) keepBlock() bool {
	return c == KeepComments || c == KeepBlock
}

func (w WhitespaceHandling) String() string {
	return [...]string{"strict", "tolerant"}[w]
}

func (b BugReproduction) String() string {
	return [...]string{"off", "arma"}[b]
}

func (c CommentHandling) String() string {
	return [...]string{"keep", "inline", "block", "remove"}[c]
}

func ParseWhitespaceHandling(s string) (WhitespaceHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict, nil
	case "tolerant":
		return Tolerant, nil
	}
	return 0, fmt.Errorf("invalid whitespace handling %q: must be 'strict' or 'tolerant'", s)
}

func ParseBugReproduction(s string) (BugReproduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return BugsOff, nil
	case "arma", "on":
		return BugsArma, nil
	}
	return 0, fmt.Errorf("invalid bug reproduction %q: must be 'off' or 'arma'", s)
}

func ParseCommentHandling(s string) (CommentHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep", "all":
		return KeepComments, nil
	case "inline":
		return KeepInline, nil
	case "block":
		return KeepBlock, nil
	case "remove", "none":
		return RemoveComments, nil
	}
	return 0, fmt.Errorf("invalid comment handling %q: must be 'keep', 'inline', 'block' or 'remove'", s)
}
