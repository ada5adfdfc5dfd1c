package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/engine"
	"github.com/chazu/jsvm/vm"
)

// Procedure paths of the evaluation service. Messages are
// google.protobuf.Struct in both directions.
const (
	EvalServiceName         = "jsvm.v1.EvalService"
	EvaluateProcedure       = "/" + EvalServiceName + "/Evaluate"
	CheckSyntaxProcedure    = "/" + EvalServiceName + "/CheckSyntax"
	DisassembleProcedure    = "/" + EvalServiceName + "/Disassemble"
	CreateSessionProcedure  = "/" + EvalServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + EvalServiceName + "/DestroySession"
	ListSessionsProcedure   = "/" + EvalServiceName + "/ListSessions"
)

// DefaultEvalTimeout bounds one evaluation when the request has no deadline.
const DefaultEvalTimeout = 10 * time.Second

type (
	structRequest  = connect.Request[structpb.Struct]
	structResponse = connect.Response[structpb.Struct]
)

// EvalService implements the evaluation and session procedures.
type EvalService struct {
	worker   *Worker // shared engine for session-less requests
	sessions *SessionStore
	timeout  time.Duration
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *Worker, sessions *SessionStore) *EvalService {
	return &EvalService{
		worker:   worker,
		sessions: sessions,
		timeout:  DefaultEvalTimeout,
	}
}

func stringField(msg *structpb.Struct, name string) string {
	if msg == nil {
		return ""
	}
	if v, ok := msg.Fields[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

func newResponse(fields map[string]interface{}) (*structResponse, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func requireSource(req *structRequest) (string, error) {
	source := stringField(req.Msg, "source")
	if source == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	return source, nil
}

// workerFor picks the session's worker, or the shared one when id is empty.
func (s *EvalService) workerFor(id string) (*Worker, error) {
	if id == "" {
		return s.worker, nil
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session.Worker, nil
}

// Evaluate compiles and executes a script.
//
// Request: {source, session?}. Response: {success, completion, typeof,
// globals{}, warnings[], error?, diagnostics[]?}.
func (s *EvalService) Evaluate(ctx context.Context, req *structRequest) (*structResponse, error) {
	source, err := requireSource(req)
	if err != nil {
		return nil, err
	}
	w, err := s.workerFor(stringField(req.Msg, "session"))
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := w.Do(func(e *engine.Engine) interface{} {
		return evaluate(ctx, e, source)
	})
	if err != nil {
		return newResponse(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
	return newResponse(result.(map[string]interface{}))
}

// evaluate runs source and renders the outcome. Must be called on the
// worker goroutine.
func evaluate(ctx context.Context, e *engine.Engine, source string) map[string]interface{} {
	res, err := e.Run(ctx, source)
	if err != nil {
		out := map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		}
		var perr *engine.ParseError
		if errors.As(err, &perr) {
			out["diagnostics"] = diagnosticList(perr.Diagnostics)
		}
		return out
	}

	globals := make(map[string]interface{}, len(res.Globals))
	for name, v := range res.Globals {
		globals[name] = v.String()
	}
	warnings := make([]interface{}, len(res.Warnings))
	for i, w := range res.Warnings {
		warnings[i] = w
	}
	return map[string]interface{}{
		"success":    true,
		"completion": res.Completion.String(),
		"typeof":     res.Completion.TypeOf(),
		"value":      nativeValue(res.Completion),
		"globals":    globals,
		"warnings":   warnings,
		"cached":     res.Cached,
	}
}

// nativeValue converts v to a JSON-compatible Go value.
func nativeValue(v vm.Value) interface{} {
	switch v.Kind() {
	case vm.KindBoolean:
		return v.Bool()
	case vm.KindNumber:
		return v.Num()
	case vm.KindString:
		return v.Text()
	case vm.KindFunction, vm.KindObject:
		return v.String()
	}
	return nil
}

func diagnosticList(diags []compiler.Diagnostic) []interface{} {
	out := make([]interface{}, len(diags))
	for i, d := range diags {
		out[i] = map[string]interface{}{
			"line":      d.Pos.Line,
			"column":    d.Pos.Column,
			"endLine":   d.End.Line,
			"endColumn": d.End.Column,
			"message":   d.Message,
		}
	}
	return out
}

// CheckSyntax validates source code without executing it.
//
// Request: {source}. Response: {valid, diagnostics[]}.
func (s *EvalService) CheckSyntax(ctx context.Context, req *structRequest) (*structResponse, error) {
	source, err := requireSource(req)
	if err != nil {
		return nil, err
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return e.CheckSyntax(source)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	diags := result.([]compiler.Diagnostic)
	return newResponse(map[string]interface{}{
		"valid":       len(diags) == 0,
		"diagnostics": diagnosticList(diags),
	})
}

// Disassemble compiles source and returns the bytecode listing.
//
// Request: {source}. Response: {listing}.
func (s *EvalService) Disassemble(ctx context.Context, req *structRequest) (*structResponse, error) {
	source, err := requireSource(req)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		listing string
		err     error
	}
	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		listing, err := e.Disassemble(source)
		return outcome{listing, err}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	out := result.(outcome)
	if out.err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, out.err)
	}
	return newResponse(map[string]interface{}{"listing": out.listing})
}

// CreateSession creates a new workspace session.
//
// Request: {name?}. Response: {id}.
func (s *EvalService) CreateSession(ctx context.Context, req *structRequest) (*structResponse, error) {
	session, err := s.sessions.Create(ctx, stringField(req.Msg, "name"))
	if err != nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	return newResponse(map[string]interface{}{"id": session.ID})
}

// DestroySession destroys a session and stops its engine.
//
// Request: {id}. Response: {}.
func (s *EvalService) DestroySession(ctx context.Context, req *structRequest) (*structResponse, error) {
	id := stringField(req.Msg, "id")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("id is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return newResponse(map[string]interface{}{})
}

// ListSessions returns the live sessions.
//
// Request: {}. Response: {sessions[{id, name, created}]}.
func (s *EvalService) ListSessions(ctx context.Context, req *structRequest) (*structResponse, error) {
	var list []interface{}
	for _, session := range s.sessions.List() {
		list = append(list, map[string]interface{}{
			"id":      session.ID,
			"name":    session.Name,
			"created": session.Created.UTC().Format(time.RFC3339),
		})
	}
	return newResponse(map[string]interface{}{"sessions": list})
}
