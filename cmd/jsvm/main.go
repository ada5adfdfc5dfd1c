// jsvm CLI - runs scripts, inspects compiled bytecode and serves editors
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/chazu/jsvm/cache"
	"github.com/chazu/jsvm/engine"
	"github.com/chazu/jsvm/manifest"
	"github.com/chazu/jsvm/server"
	"github.com/chazu/jsvm/vm"
	"github.com/chazu/jsvm/vm/wire"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // runtime, compile or I/O error
	exitSyntax  = 2 // parse error or bad usage
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	eval        string
	disassemble bool
	dumpAST     bool
	output      string
	runCompiled string
	interactive bool
	serve       bool
	port        int
	lsp         bool
	configDir   string
	trace       bool
	verbose     bool
}

// cli carries the streams and configuration of one invocation.
type cli struct {
	opts   options
	cfg    *manifest.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("jsvm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.eval, "e", "", "Evaluate source text")
	fs.BoolVar(&o.disassemble, "d", false, "Print the bytecode listing instead of running")
	fs.BoolVar(&o.dumpAST, "ast", false, "Print the syntax tree as YAML instead of running")
	fs.StringVar(&o.output, "o", "", "Compile to a bytecode file instead of running")
	fs.StringVar(&o.runCompiled, "run", "", "Run a compiled bytecode file")
	fs.BoolVar(&o.interactive, "i", false, "Start interactive REPL")
	fs.BoolVar(&o.serve, "serve", false, "Start the evaluation server (Connect HTTP/JSON + gRPC)")
	fs.IntVar(&o.port, "port", 0, "Server port (default from jsvm.toml, else 4567)")
	fs.BoolVar(&o.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&o.configDir, "config", "", "Directory containing jsvm.toml")
	fs.BoolVar(&o.trace, "trace", false, "Trace each executed instruction to stderr")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: jsvm [options] [script.js]\n\n")
		fmt.Fprintf(stderr, "Runs a script, or the project entry from jsvm.toml, or starts a REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  jsvm script.js                 # Run and print globals\n")
		fmt.Fprintf(stderr, "  jsvm -e 'var a = 6 * 7;'       # Evaluate text\n")
		fmt.Fprintf(stderr, "  jsvm -d script.js              # Disassemble\n")
		fmt.Fprintf(stderr, "  jsvm -o out.jsbc script.js     # Compile to bytecode\n")
		fmt.Fprintf(stderr, "  jsvm -run out.jsbc             # Run compiled bytecode\n")
		fmt.Fprintf(stderr, "  jsvm -serve -port 8080         # Evaluation server on :8080\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitSyntax
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "Error: expected at most one script, got %d\n", fs.NArg())
		return exitSyntax
	}

	verbosity := 0
	if o.verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := loadConfig(o.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if o.verbose && cfg.Dir != "." {
		fmt.Fprintf(stderr, "Using %s\n", cfg.Resolve(manifest.FileName))
	}

	c := &cli{opts: o, cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr}

	switch {
	case o.lsp:
		if err := server.NewLSP(cfg).Run(); err != nil {
			fmt.Fprintf(stderr, "LSP error: %v\n", err)
			return exitFailure
		}
		return exitOK
	case o.serve:
		return c.serve()
	case o.runCompiled != "":
		return c.runBytecodeFile(o.runCompiled)
	}

	name, source, ok, code := c.source(fs.Arg(0))
	if code != exitOK {
		return code
	}
	if !ok {
		return c.repl()
	}
	code = c.script(name, source)
	if code == exitOK && o.interactive {
		return c.repl()
	}
	return code
}

// loadConfig reads jsvm.toml from dir, or searches upward from the
// working directory when dir is empty.
func loadConfig(dir string) (*manifest.Config, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	return cfg, nil
}

// source picks the script to run: -e text, the file argument, the
// project entry, or piped stdin. ok is false when the REPL should start.
func (c *cli) source(arg string) (name, source string, ok bool, code int) {
	switch {
	case c.opts.eval != "":
		return "<eval>", c.opts.eval, true, exitOK
	case arg != "":
		return c.readScript(arg)
	case c.opts.interactive:
		return "", "", false, exitOK
	case c.cfg.Project.Entry != "":
		return c.readScript(c.cfg.EntryPath())
	}
	if f, isFile := c.stdin.(*os.File); isFile && term.IsTerminal(int(f.Fd())) {
		return "", "", false, exitOK
	}
	data, err := io.ReadAll(c.stdin)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: reading stdin: %v\n", err)
		return "", "", false, exitFailure
	}
	return "<stdin>", string(data), true, exitOK
}

func (c *cli) readScript(path string) (string, string, bool, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return "", "", false, exitFailure
	}
	return path, string(data), true, exitOK
}

// newEngine builds an engine from the configuration, with the bytecode
// cache when it is enabled. The returned func releases the cache.
func (c *cli) newEngine(extra ...engine.Option) (*engine.Engine, func(), error) {
	opts := extra
	closeFn := func() {}
	if c.cfg.Cache.Enabled {
		store, err := cache.Open(c.cfg.CachePath())
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithCache(store))
		closeFn = func() { _ = store.Close() }
	}
	if c.opts.trace {
		opts = append(opts, engine.WithTrace(c.stderr))
	}
	return engine.New(c.cfg, opts...), closeFn, nil
}

// script handles a single script according to the output flags.
func (c *cli) script(name, source string) int {
	e, closeFn, err := c.newEngine(engine.WithPersistent())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer closeFn()

	switch {
	case c.opts.dumpAST:
		out, err := e.DumpAST(source)
		if err != nil {
			return c.fail(err)
		}
		fmt.Fprint(c.stdout, out)
		return exitOK
	case c.opts.disassemble:
		out, err := e.Disassemble(source)
		if err != nil {
			return c.fail(err)
		}
		fmt.Fprint(c.stdout, out)
		return exitOK
	case c.opts.output != "":
		return c.compileTo(e, name, source, c.opts.output)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := e.RunPrelude(ctx); err != nil {
		return c.fail(err)
	}
	res, err := e.RunNamed(ctx, name, source)
	if err != nil {
		return c.fail(err)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(c.stderr, "%s: %s\n", name, w)
	}
	if c.opts.eval != "" && res.Completion.Kind() != vm.KindUndefined {
		fmt.Fprintln(c.stdout, res.Completion)
	}
	printGlobals(c.stdout, res.Globals)
	return exitOK
}

// compileTo writes the compiled form of source to path.
func (c *cli) compileTo(e *engine.Engine, name, source, path string) int {
	bc, err := e.Compile(source)
	if err != nil {
		return c.fail(err)
	}
	data, err := wire.Marshal(bc, name)
	if err != nil {
		return c.fail(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return c.fail(err)
	}
	if c.opts.verbose {
		fmt.Fprintf(c.stderr, "Wrote %s (%d instructions, %d bytes)\n", path, len(bc.Instructions), len(data))
	}
	return exitOK
}

// runBytecodeFile executes a file written by -o.
func (c *cli) runBytecodeFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return c.fail(err)
	}
	bc, err := wire.Unmarshal(data)
	if err != nil {
		return c.fail(fmt.Errorf("%s: %w", path, err))
	}

	e, closeFn, err := c.newEngine(engine.WithPersistent())
	if err != nil {
		return c.fail(err)
	}
	defer closeFn()

	if c.opts.disassemble {
		fmt.Fprint(c.stdout, vm.Disassemble(bc))
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := e.RunPrelude(ctx); err != nil {
		return c.fail(err)
	}
	res, err := e.RunBytecode(ctx, bc)
	if err != nil {
		return c.fail(err)
	}
	printGlobals(c.stdout, res.Globals)
	return exitOK
}

// serve starts the evaluation server and blocks.
func (c *cli) serve() int {
	var opts []engine.Option
	if c.cfg.Cache.Enabled {
		store, err := cache.Open(c.cfg.CachePath())
		if err != nil {
			return c.fail(err)
		}
		defer store.Close()
		opts = append(opts, engine.WithCache(store))
	}

	addr := c.cfg.Server.Addr
	if c.opts.port != 0 {
		addr = fmt.Sprintf(":%d", c.opts.port)
	}
	srv := server.New(c.cfg, opts...)
	defer srv.Stop()
	if err := srv.ListenAndServe(addr); err != nil {
		fmt.Fprintf(c.stderr, "Server error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// fail reports err and maps it to an exit code.
func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "%v\n", err)
	var perr *engine.ParseError
	if errors.As(err, &perr) {
		return exitSyntax
	}
	return exitFailure
}

// printGlobals prints bindings as name = value, sorted by name.
func printGlobals(w io.Writer, globals map[string]vm.Value) {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s = %s\n", name, globals[name])
	}
}
