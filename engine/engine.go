// Package engine drives the pipeline for hosts: parse, analyze, emit and
// execute, with an optional bytecode cache keyed by the syntax tree hash.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/compiler/hash"
	"github.com/chazu/jsvm/manifest"
	"github.com/chazu/jsvm/vm"
)

var log = commonlog.GetLogger("jsvm.engine")

// Cache stores compiled programs by key. *cache.Store implements it.
type Cache interface {
	Get(key string) (*vm.Bytecode, error)
	Put(key string, bc *vm.Bytecode) error
}

// ParseError reports syntax errors with source positions.
type ParseError struct {
	Name        string // file name or "<eval>"
	Diagnostics []compiler.Diagnostic
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s:%d:%d: %s", e.Name, d.Pos.Line, d.Pos.Column, d.Message)
	}
	return strings.Join(msgs, "\n")
}

// Result is the outcome of one run. Its values are copies that stay valid
// after later runs or Reset.
type Result struct {
	Completion vm.Value
	Globals    map[string]vm.Value
	Warnings   []string
	Cached     bool // bytecode came from the cache
}

// Engine owns a string pool and a VM. An Engine is single-threaded.
type Engine struct {
	cfg        *manifest.Config
	pool       *vm.StringPool
	vm         *vm.VM
	cache      Cache
	persistent bool
	trace      io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache consults c before emitting bytecode and stores misses.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPersistent keeps global bindings across runs.
func WithPersistent() Option {
	return func(e *Engine) { e.persistent = true }
}

// WithTrace writes executed instructions to w.
func WithTrace(w io.Writer) Option {
	return func(e *Engine) { e.trace = w }
}

// New creates an engine. A nil cfg uses manifest.Default().
func New(cfg *manifest.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = manifest.Default()
	}
	e := &Engine{cfg: cfg, pool: vm.NewStringPool()}
	for _, opt := range opts {
		opt(e)
	}
	e.vm = e.newVM()
	return e
}

func (e *Engine) newVM() *vm.VM {
	opts := []vm.Option{
		vm.WithStackSize(e.cfg.Engine.StackSize),
		vm.WithLocalsPerScope(e.cfg.Engine.LocalsPerScope),
		vm.WithMaxScopes(e.cfg.Engine.MaxScopes),
	}
	if e.trace != nil {
		opts = append(opts, vm.WithTrace(e.trace))
	}
	return vm.New(e.pool, opts...)
}

// Config returns the engine configuration.
func (e *Engine) Config() *manifest.Config { return e.cfg }

// Pool returns the string pool shared by the parser and the VM.
func (e *Engine) Pool() *vm.StringPool { return e.pool }

// VM returns the underlying machine.
func (e *Engine) VM() *vm.VM { return e.vm }

// Persistent reports whether bindings survive between runs.
func (e *Engine) Persistent() bool { return e.persistent }

// Lookup reads a variable left by the last run.
func (e *Engine) Lookup(name string) (vm.Value, bool) {
	return e.vm.Lookup(name)
}

// Reset drops every binding and returns runtime strings to the pool.
func (e *Engine) Reset() {
	e.vm.Reset()
}

func (e *Engine) parse(name, source string) (*compiler.Program, error) {
	prog, diags := e.ParseProgram(source)
	if len(diags) > 0 {
		prog.Release()
		return nil, &ParseError{Name: name, Diagnostics: diags}
	}
	return prog, nil
}

// ParseProgram parses source and returns the tree, partial when there are
// diagnostics. The caller must Release the program.
func (e *Engine) ParseProgram(source string) (*compiler.Program, []compiler.Diagnostic) {
	p := compiler.NewParser(source, e.pool, compiler.WithMaxDepth(e.cfg.Engine.MaxParseDepth))
	prog := p.ParseProgram()
	return prog, p.Diagnostics()
}

// CheckSyntax parses source and returns its diagnostics, if any.
func (e *Engine) CheckSyntax(source string) []compiler.Diagnostic {
	prog, diags := e.ParseProgram(source)
	prog.Release()
	return diags
}

// Analyze parses source and runs the semantic checks. Names bound by
// earlier runs count as declared.
func (e *Engine) Analyze(source string) ([]string, error) {
	prog, err := e.parse("<eval>", source)
	if err != nil {
		return nil, err
	}
	defer prog.Release()
	return compiler.Analyze(prog, e.vm.GlobalNames()), nil
}

// Lint is Analyze with structured positions.
func (e *Engine) Lint(source string) ([]compiler.Finding, error) {
	prog, err := e.parse("<eval>", source)
	if err != nil {
		return nil, err
	}
	defer prog.Release()
	a := compiler.NewSemanticAnalyzer()
	for _, name := range e.vm.GlobalNames() {
		a.AddKnownGlobal(name)
	}
	a.AnalyzeProgram(prog)
	return a.Findings(), nil
}

// Compile turns source into bytecode, using the cache when configured.
func (e *Engine) Compile(source string) (*vm.Bytecode, error) {
	bc, _, _, err := e.compile("<eval>", source)
	return bc, err
}

func (e *Engine) compile(name, source string) (*vm.Bytecode, []string, bool, error) {
	prog, err := e.parse(name, source)
	if err != nil {
		return nil, nil, false, err
	}
	defer prog.Release()

	var warnings []string
	if e.cfg.Engine.Analyze {
		warnings = compiler.Analyze(prog, e.vm.GlobalNames())
	}

	var key string
	if e.cache != nil {
		key = hash.Key(prog)
		bc, err := e.cache.Get(key)
		if err == nil {
			log.Debugf("cache hit %s", key[:12])
			return bc, warnings, true, nil
		}
		log.Debugf("cache miss %s: %v", key[:12], err)
	}

	gen := compiler.NewCodegen()
	bc, err := gen.Compile(prog)
	if err != nil {
		return nil, nil, false, err
	}
	warnings = append(warnings, gen.Warnings()...)

	if e.cache != nil {
		if err := e.cache.Put(key, bc); err != nil {
			log.Warningf("cache store %s: %v", key[:12], err)
		}
	}
	return bc, warnings, false, nil
}

// Disassemble compiles source and renders its bytecode listing.
func (e *Engine) Disassemble(source string) (string, error) {
	bc, err := e.Compile(source)
	if err != nil {
		return "", err
	}
	return vm.Disassemble(bc), nil
}

// DumpAST parses source and renders its syntax tree as YAML.
func (e *Engine) DumpAST(source string) (string, error) {
	prog, err := e.parse("<eval>", source)
	if err != nil {
		return "", err
	}
	defer prog.Release()
	return compiler.DumpYAML(prog)
}

// Run compiles and executes source.
func (e *Engine) Run(ctx context.Context, source string) (*Result, error) {
	return e.RunNamed(ctx, "<eval>", source)
}

// RunNamed is Run with a file name for error messages.
func (e *Engine) RunNamed(ctx context.Context, name, source string) (*Result, error) {
	bc, warnings, cached, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	res, err := e.RunBytecode(ctx, bc)
	if err != nil {
		return nil, err
	}
	res.Warnings = warnings
	res.Cached = cached
	return res, nil
}

// RunFile reads and runs a script.
func (e *Engine) RunFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.RunNamed(ctx, path, string(data))
}

// RunBytecode executes already compiled bytecode. Unless the engine is
// persistent, bindings from the previous run are dropped first.
func (e *Engine) RunBytecode(ctx context.Context, bc *vm.Bytecode) (*Result, error) {
	if !e.persistent {
		e.vm.Reset()
	}
	if err := e.vm.Execute(ctx, bc); err != nil {
		var rerr *vm.RuntimeError
		if errors.As(err, &rerr) {
			log.Debugf("runtime error at pc %d (%s): %v", rerr.PC, rerr.Op, rerr.Err)
		}
		return nil, err
	}
	return &Result{
		Completion: e.vm.Completion(),
		Globals:    e.vm.Globals(),
	}, nil
}

// RunPrelude runs the configured prelude scripts in order. It is meant
// for persistent engines, whose bindings the scripts then provide.
func (e *Engine) RunPrelude(ctx context.Context) error {
	for _, path := range e.cfg.PreludePaths() {
		log.Infof("loading prelude %s", path)
		if _, err := e.RunFile(ctx, path); err != nil {
			return fmt.Errorf("prelude %s: %w", path, err)
		}
	}
	return nil
}
