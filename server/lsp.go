package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/engine"
	"github.com/chazu/jsvm/manifest"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "jsvm-lsp"

var lspLog = commonlog.GetLogger("jsvm.lsp")

// LspServer bridges LSP editor features to the parser and analyzer via a
// Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. Prelude bindings from cfg count as
// declared names.
func NewLSP(cfg *manifest.Config) *LspServer {
	e := engine.New(cfg, engine.WithPersistent())
	if err := e.RunPrelude(context.Background()); err != nil {
		lspLog.Warningf("prelude: %v", err)
	}
	worker := NewWorker(e)
	s := &LspServer{
		worker:  worker,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("jsvm LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.complete(e, text, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.hover(e, text, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.definition(e, uri, text, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.references(e, uri, text, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.([]protocol.Location), nil
}

// --- Engine-backed logic (called on worker goroutine) ---

// declaration is where a name is introduced in a document.
type declaration struct {
	kind string // var, let, const, function, parameter
	span compiler.Span
}

// declarations collects the first declaration of every name in prog.
func declarations(prog *compiler.Program) map[string]declaration {
	out := make(map[string]declaration)
	add := func(id *compiler.Identifier, kind string) {
		if id == nil || id.Name == nil {
			return
		}
		if _, seen := out[id.Text()]; !seen {
			out[id.Text()] = declaration{kind: kind, span: id.Span()}
		}
	}
	params := func(list *compiler.AstNodeList) {
		if list == nil {
			return
		}
		for _, p := range list.Items {
			if id, ok := p.(*compiler.Identifier); ok {
				add(id, "parameter")
			}
		}
	}
	compiler.Walk(prog, func(n compiler.Node) bool {
		switch n := n.(type) {
		case *compiler.VariableDeclaration:
			add(n.Target, n.DeclKind.String())
		case *compiler.FunctionDeclaration:
			add(n.Name, "function")
			params(n.Params)
		case *compiler.FunctionExpression:
			add(n.Name, "function")
			params(n.Params)
		case *compiler.Setter:
			add(n.Param, "parameter")
		}
		return true
	})
	return out
}

// identifiers calls fn for every identifier that names a variable. Non
// computed property names and labels are skipped.
func identifiers(node compiler.Node, fn func(*compiler.Identifier)) {
	compiler.Walk(node, func(n compiler.Node) bool {
		switch n := n.(type) {
		case *compiler.Identifier:
			fn(n)
		case *compiler.MemberExpression:
			if !n.Computed {
				identifiers(n.Object, fn)
				return false
			}
		case *compiler.Property:
			if !n.Computed {
				identifiers(n.Value, fn)
				return false
			}
		case *compiler.Getter:
			identifiers(n.Body, fn)
			return false
		case *compiler.Setter:
			identifiers(n.Param, fn)
			identifiers(n.Body, fn)
			return false
		case *compiler.LabelledStatement:
			identifiers(n.Body, fn)
			return false
		case *compiler.BreakStatement, *compiler.ContinueStatement:
			return false
		}
		return true
	})
}

func (s *LspServer) complete(e *engine.Engine, text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		labelCopy, detailCopy := label, detail
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &labelCopy,
		})
	}

	prog, _ := e.ParseProgram(text)
	decls := declarations(prog)
	prog.Release()

	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind := protocol.CompletionItemKindVariable
		if decls[name].kind == "function" {
			kind = protocol.CompletionItemKindFunction
		}
		add(name, decls[name].kind, kind)
	}

	for _, name := range e.VM().GlobalNames() {
		add(name, "global", protocol.CompletionItemKindVariable)
	}

	for _, kw := range compiler.Keywords() {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) hover(e *engine.Engine, text, word string) *protocol.Hover {
	var b strings.Builder

	prog, _ := e.ParseProgram(text)
	decl, declared := declarations(prog)[word]
	prog.Release()

	switch {
	case declared:
		fmt.Fprintf(&b, "**%s** `%s`\n\nDeclared at line %d, column %d",
			decl.kind, word, decl.span.Start.Line, decl.span.Start.Column)
	case isKeyword(word):
		fmt.Fprintf(&b, "**%s** keyword", word)
	default:
		v, ok := e.Lookup(word)
		if !ok {
			return nil
		}
		fmt.Fprintf(&b, "**global** `%s`\n\n%s = %s", word, v.TypeOf(), v)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func isKeyword(word string) bool {
	for _, kw := range compiler.Keywords() {
		if kw == word {
			return true
		}
	}
	return false
}

func (s *LspServer) definition(e *engine.Engine, uri protocol.DocumentUri, text, word string) []protocol.Location {
	prog, _ := e.ParseProgram(text)
	decl, ok := declarations(prog)[word]
	prog.Release()
	if !ok {
		return nil
	}
	return []protocol.Location{{URI: uri, Range: lspRange(text, decl.span)}}
}

func (s *LspServer) references(e *engine.Engine, uri protocol.DocumentUri, text, word string) []protocol.Location {
	prog, _ := e.ParseProgram(text)
	defer prog.Release()

	var locations []protocol.Location
	identifiers(prog, func(id *compiler.Identifier) {
		if id.Name != nil && id.Text() == word {
			locations = append(locations, protocol.Location{URI: uri, Range: lspRange(text, id.Span())})
		}
	})
	return locations
}

// --- Diagnostics ---

// diagnose returns parse errors, or analysis findings when the document
// parses. Must be called on the worker goroutine.
func diagnose(e *engine.Engine, text string) []protocol.Diagnostic {
	source := lspName
	errSeverity := protocol.DiagnosticSeverityError
	warnSeverity := protocol.DiagnosticSeverityWarning

	diagnostics := []protocol.Diagnostic{}
	if diags := e.CheckSyntax(text); len(diags) > 0 {
		for _, d := range diags {
			end := d.End
			if end.Offset <= d.Pos.Offset {
				end = d.Pos
			}
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    lspRange(text, compiler.Span{Start: d.Pos, End: end}),
				Severity: &errSeverity,
				Source:   &source,
				Message:  d.Message,
			})
		}
		return diagnostics
	}

	findings, err := e.Lint(text)
	if err != nil {
		lspLog.Warningf("lint: %v", err)
		return diagnostics
	}
	for _, f := range findings {
		severity := &errSeverity
		if f.Warning {
			severity = &warnSeverity
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    lspRange(text, compiler.Span{Start: f.Pos, End: f.Pos}),
			Severity: severity,
			Source:   &source,
			Message:  f.Message,
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return diagnose(e, text)
	})
	if err != nil {
		lspLog.Errorf("diagnostics for %s: %v", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Position conversion ---

// lspPosition converts a source position to a zero-based LSP position.
// Characters are counted in UTF-16 code units from the line start, so
// tabs count as one.
func lspPosition(text string, pos compiler.Position) protocol.Position {
	offset := pos.Offset
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	start := strings.LastIndexAny(text[:offset], "\r\n") + 1
	line := pos.Line - 1
	if line < 0 {
		line = 0
	}
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(len(utf16.Encode([]rune(text[start:offset])))),
	}
}

func lspRange(text string, span compiler.Span) protocol.Range {
	return protocol.Range{
		Start: lspPosition(text, span.Start),
		End:   lspPosition(text, span.End),
	}
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'
}

// lineAt returns line n of text and the cursor column clamped to it.
func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := strings.TrimSuffix(lines[pos.Line], "\r")
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
