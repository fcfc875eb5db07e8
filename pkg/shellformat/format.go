// Package shellformat renders shell commands on a single line for display.
//
// It parses commands using mvdan.cc/sh/v3/syntax (the shfmt parser) and
// reprints them in canonical one-line form: statements join with "; ",
// compound bodies inline with their keywords, and backtick substitutions
// become $(...) form. The output is meant for chat transcripts and logs,
// not for re-execution; heredoc bodies in particular lose their line
// breaks. Input that does not parse as Bash is returned with its line
// breaks collapsed to spaces.
package shellformat

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var lineBreaks = regexp.MustCompile(`[ \t]*\n+[ \t]*`)

// Oneline parses a shell command and renders it as a single line.
func Oneline(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(input), "")
	if err != nil {
		return flatten(input)
	}

	o := &oneliner{
		printer: syntax.NewPrinter(syntax.SpaceRedirects(true)),
	}
	o.stmts(prog.Stmts)
	return o.buf.String()
}

// Summarize renders a command on a single line and truncates it to at
// most max runes, appending "..." when content was cut. A max of zero or
// less means no limit.
func Summarize(input string, max int) string {
	s := Oneline(input)
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func flatten(s string) string {
	return lineBreaks.ReplaceAllString(strings.TrimSpace(s), " ")
}

// oneliner walks the AST and writes every node without line breaks.
type oneliner struct {
	buf     bytes.Buffer
	printer *syntax.Printer
}

// nodeStr renders a syntax node through the standard printer, flattening
// any line breaks the printer emits.
func (o *oneliner) nodeStr(node syntax.Node) string {
	var buf bytes.Buffer
	o.printer.Print(&buf, node)
	return flatten(buf.String())
}

// stmts writes a statement list joined with "; ". A statement already
// terminated by & joins with a plain space.
func (o *oneliner) stmts(list []*syntax.Stmt) {
	for i, s := range list {
		if i > 0 {
			if list[i-1].Background {
				o.buf.WriteByte(' ')
			} else {
				o.buf.WriteString("; ")
			}
		}
		o.stmt(s)
	}
}

// stmt writes a single statement. Simple commands go through the standard
// printer, which keeps them on one line; compound commands are rendered
// keyword by keyword with explicit separators.
func (o *oneliner) stmt(s *syntax.Stmt) {
	switch s.Cmd.(type) {
	case *syntax.BinaryCmd, *syntax.IfClause, *syntax.ForClause,
		*syntax.WhileClause, *syntax.CaseClause, *syntax.Block,
		*syntax.Subshell, *syntax.FuncDecl:
	default:
		o.buf.WriteString(o.nodeStr(s))
		return
	}

	if s.Negated {
		o.buf.WriteString("! ")
	}

	switch cmd := s.Cmd.(type) {
	case *syntax.BinaryCmd:
		o.binaryCmd(cmd)
	case *syntax.IfClause:
		o.ifClause(cmd)
	case *syntax.ForClause:
		o.forClause(cmd)
	case *syntax.WhileClause:
		o.whileClause(cmd)
	case *syntax.CaseClause:
		o.caseClause(cmd)
	case *syntax.Block:
		o.block(cmd)
	case *syntax.Subshell:
		o.subshell(cmd)
	case *syntax.FuncDecl:
		o.funcDecl(cmd)
	}

	for _, r := range s.Redirs {
		o.buf.WriteByte(' ')
		o.redirect(r)
	}
	if s.Background {
		o.buf.WriteString(" &")
	}
}

func (o *oneliner) binaryCmd(cmd *syntax.BinaryCmd) {
	o.stmt(cmd.X)
	o.buf.WriteByte(' ')
	o.buf.WriteString(cmd.Op.String())
	o.buf.WriteByte(' ')
	o.stmt(cmd.Y)
}

func (o *oneliner) ifClause(cmd *syntax.IfClause) {
	o.buf.WriteString("if ")
	o.stmts(cmd.Cond)
	o.buf.WriteString("; then ")
	o.stmts(cmd.Then)
	for el := cmd.Else; el != nil; el = el.Else {
		o.buf.WriteString("; ")
		if len(el.Cond) > 0 {
			o.buf.WriteString("elif ")
			o.stmts(el.Cond)
			o.buf.WriteString("; then ")
			o.stmts(el.Then)
		} else {
			o.buf.WriteString("else ")
			o.stmts(el.Then)
		}
	}
	o.buf.WriteString("; fi")
}

func (o *oneliner) forClause(cmd *syntax.ForClause) {
	if cmd.Select {
		o.buf.WriteString("select ")
	} else {
		o.buf.WriteString("for ")
	}

	switch loop := cmd.Loop.(type) {
	case *syntax.WordIter:
		o.buf.WriteString(loop.Name.Value)
		if loop.InPos.IsValid() {
			o.buf.WriteString(" in")
			for _, w := range loop.Items {
				o.buf.WriteByte(' ')
				o.buf.WriteString(o.nodeStr(w))
			}
		}
	case *syntax.CStyleLoop:
		o.buf.WriteString(o.nodeStr(loop))
	}

	o.buf.WriteString("; do ")
	o.stmts(cmd.Do)
	o.buf.WriteString("; done")
}

func (o *oneliner) whileClause(cmd *syntax.WhileClause) {
	if cmd.Until {
		o.buf.WriteString("until ")
	} else {
		o.buf.WriteString("while ")
	}
	o.stmts(cmd.Cond)
	o.buf.WriteString("; do ")
	o.stmts(cmd.Do)
	o.buf.WriteString("; done")
}

func (o *oneliner) caseClause(cmd *syntax.CaseClause) {
	o.buf.WriteString("case ")
	o.buf.WriteString(o.nodeStr(cmd.Word))
	o.buf.WriteString(" in")

	for _, item := range cmd.Items {
		o.buf.WriteByte(' ')
		for i, pat := range item.Patterns {
			if i > 0 {
				o.buf.WriteString(" | ")
			}
			o.buf.WriteString(o.nodeStr(pat))
		}
		o.buf.WriteByte(')')
		if len(item.Stmts) > 0 {
			o.buf.WriteByte(' ')
			o.stmts(item.Stmts)
		}
		o.buf.WriteString(item.Op.String())
	}

	o.buf.WriteString(" esac")
}

func (o *oneliner) block(cmd *syntax.Block) {
	o.buf.WriteString("{ ")
	o.stmts(cmd.Stmts)
	o.buf.WriteString("; }")
}

func (o *oneliner) subshell(cmd *syntax.Subshell) {
	o.buf.WriteByte('(')
	o.stmts(cmd.Stmts)
	o.buf.WriteByte(')')
}

func (o *oneliner) funcDecl(cmd *syntax.FuncDecl) {
	if cmd.RsrvWord {
		o.buf.WriteString("function ")
	}
	o.buf.WriteString(cmd.Name.Value)
	if cmd.Parens {
		o.buf.WriteString("()")
	}
	o.buf.WriteByte(' ')
	if cmd.Body != nil {
		o.stmt(cmd.Body)
	}
}

// redirect writes an outer redirect of a compound statement. Redirects on
// simple commands are rendered by the standard printer instead.
func (o *oneliner) redirect(r *syntax.Redirect) {
	if r.N != nil {
		o.buf.WriteString(r.N.Value)
	}
	o.buf.WriteString(r.Op.String())
	if r.Op != syntax.DplOut && r.Op != syntax.DplIn {
		o.buf.WriteByte(' ')
	}
	if r.Word != nil {
		o.buf.WriteString(o.nodeStr(r.Word))
	}
	if r.Hdoc != nil {
		o.buf.WriteByte(' ')
		o.buf.WriteString(o.nodeStr(r.Hdoc))
	}
}
