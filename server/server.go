package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/jsvm/engine"
	"github.com/chazu/jsvm/manifest"
)

var log = commonlog.GetLogger("jsvm.server")

// JsvmServer serves the evaluation service over the Connect protocol.
// Connect handlers also accept gRPC and gRPC-Web clients on the same port.
type JsvmServer struct {
	worker   *Worker
	sessions *SessionStore
	eval     *EvalService
	mux      *http.ServeMux
}

// New creates a server. Session-less requests share one engine built
// from cfg and opts; sessions each get their own.
func New(cfg *manifest.Config, opts ...engine.Option) *JsvmServer {
	worker := NewWorker(engine.New(cfg, opts...))
	sessions := NewSessionStore(cfg, opts...)

	s := &JsvmServer{
		worker:   worker,
		sessions: sessions,
		eval:     NewEvalService(worker, sessions),
		mux:      http.NewServeMux(),
	}

	unary := func(procedure string, fn func(context.Context, *structRequest) (*structResponse, error)) {
		s.mux.Handle(procedure, connect.NewUnaryHandler[structpb.Struct, structpb.Struct](procedure, fn))
	}
	unary(EvaluateProcedure, s.eval.Evaluate)
	unary(CheckSyntaxProcedure, s.eval.CheckSyntax)
	unary(DisassembleProcedure, s.eval.Disassemble)
	unary(CreateSessionProcedure, s.eval.CreateSession)
	unary(DestroySessionProcedure, s.eval.DestroySession)
	unary(ListSessionsProcedure, s.eval.ListSessions)

	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *JsvmServer) Handler() http.Handler {
	return s.mux
}

// Sessions returns the session store.
func (s *JsvmServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *JsvmServer) ListenAndServe(addr string) error {
	log.Noticef("jsvm server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvaluateProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down every engine goroutine.
func (s *JsvmServer) Stop() {
	s.sessions.Close()
	s.worker.Stop()
}
