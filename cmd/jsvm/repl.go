package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/engine"
)

const (
	historyFile = ".jsvm_history"
	promptMain  = ">> "
	promptCont  = ".. "
)

// repl starts an interactive read-eval-print loop on a persistent engine.
func (c *cli) repl() int {
	e, closeFn, err := c.newEngine(engine.WithPersistent())
	if err != nil {
		return c.fail(err)
	}
	defer closeFn()

	if err := e.RunPrelude(context.Background()); err != nil {
		return c.fail(err)
	}

	fmt.Fprintln(c.stdout, "jsvm REPL (type :help for commands, :quit to exit)")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		return completeLine(e, line)
	})

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		input, ok := readInput(ln, e)
		if !ok {
			fmt.Fprintln(c.stdout)
			return exitOK
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if quit := c.command(e, trimmed); quit {
				return exitOK
			}
			continue
		}
		c.evalAndPrint(e, input)
	}
}

// readInput reads one complete entry, prompting for more lines while the
// parser stops at end of input.
func readInput(ln *liner.State, e *engine.Engine) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl-C drops the pending entry
			b.Reset()
			continue
		}
		if err != nil {
			if b.Len() > 0 && errors.Is(err, io.EOF) {
				return b.String(), true
			}
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") || !incomplete(e, src) {
			return src, true
		}
	}
}

// incomplete reports whether src fails only because it ends too early.
func incomplete(e *engine.Engine, src string) bool {
	diags := e.CheckSyntax(src)
	if len(diags) == 0 {
		return false
	}
	end := len(strings.TrimRight(src, " \t\r\n"))
	for _, d := range diags {
		if d.Pos.Offset < end {
			return false
		}
	}
	return true
}

// command handles REPL meta-commands. Reports whether to quit.
func (c *cli) command(e *engine.Engine, cmd string) bool {
	fields := strings.Fields(cmd)
	arg := strings.TrimSpace(strings.TrimPrefix(cmd, fields[0]))

	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(c.stdout, "REPL Commands:")
		fmt.Fprintln(c.stdout, "  :help, :h, :?     Show this help")
		fmt.Fprintln(c.stdout, "  :globals          List bindings")
		fmt.Fprintln(c.stdout, "  :reset            Drop every binding")
		fmt.Fprintln(c.stdout, "  :dis <source>     Disassemble source")
		fmt.Fprintln(c.stdout, "  :ast <source>     Print the syntax tree")
		fmt.Fprintln(c.stdout, "  :quit, :q         Exit REPL")
	case ":globals":
		printGlobals(c.stdout, e.VM().Globals())
	case ":reset":
		e.Reset()
		fmt.Fprintln(c.stdout, "Bindings cleared")
	case ":dis":
		out, err := e.Disassemble(arg)
		if err != nil {
			fmt.Fprintln(c.stderr, err)
			return false
		}
		fmt.Fprint(c.stdout, out)
	case ":ast":
		out, err := e.DumpAST(arg)
		if err != nil {
			fmt.Fprintln(c.stderr, err)
			return false
		}
		fmt.Fprint(c.stdout, out)
	case ":quit", ":q", ":exit":
		return true
	default:
		fmt.Fprintf(c.stdout, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}

// evalAndPrint runs input and prints its completion value. Ctrl-C stops
// a long-running entry without leaving the REPL.
func (c *cli) evalAndPrint(e *engine.Engine, input string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := e.RunNamed(ctx, "<repl>", input)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(c.stderr, w)
	}
	fmt.Fprintln(c.stdout, res.Completion)
}

// completeLine offers keywords and bound names for the word being typed.
func completeLine(e *engine.Engine, line string) []string {
	start := len(line)
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	prefix := line[start:]
	if prefix == "" {
		return nil
	}

	var out []string
	for _, name := range e.VM().GlobalNames() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, line[:start]+name)
		}
	}
	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			out = append(out, line[:start]+kw)
		}
	}
	return out
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
