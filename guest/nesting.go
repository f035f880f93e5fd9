package guest

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrBrokenNesting reports an outer command that no longer has the shape
// "<tool> exec2 <target> '<inner>'" once parsed by a shell.
var ErrBrokenNesting = errors.New("outer command does not nest the inner command")

// CheckNesting parses outer as bash and verifies it is a single call of
// exactly four words whose last word is one single-quoted string. A single
// quote in the user command splits or unbalances that word.
func CheckNesting(tool, target, outer string) error {
	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	f, err := p.Parse(strings.NewReader(outer), "")
	if err != nil {
		return fmt.Errorf("%w: parse error: %v", ErrBrokenNesting, err)
	}
	if len(f.Stmts) != 1 {
		return fmt.Errorf("%w: %d statements", ErrBrokenNesting, len(f.Stmts))
	}
	stmt := f.Stmts[0]
	if stmt.Background || stmt.Negated || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return fmt.Errorf("%w: statement carries operators outside the quoted command", ErrBrokenNesting)
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return fmt.Errorf("%w: not a simple command", ErrBrokenNesting)
	}
	if len(call.Assigns) > 0 || len(call.Args) != 4 {
		return fmt.Errorf("%w: %d words", ErrBrokenNesting, len(call.Args))
	}
	for i, want := range []string{tool, "exec2", target} {
		if got := call.Args[i].Lit(); got != want {
			return fmt.Errorf("%w: word %d is %q, expected %q", ErrBrokenNesting, i, got, want)
		}
	}
	last := call.Args[3]
	if len(last.Parts) != 1 {
		return fmt.Errorf("%w: inner command is split into %d parts", ErrBrokenNesting, len(last.Parts))
	}
	if sq, ok := last.Parts[0].(*syntax.SglQuoted); !ok || sq.Dollar {
		return fmt.Errorf("%w: inner command is not single-quoted", ErrBrokenNesting)
	}
	return nil
}
