package lsp_server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nedpals/tla-sany-lsp/rpc"
	"github.com/nedpals/tla-sany-lsp/sany"
	"github.com/nedpals/tla-sany-lsp/session"
	"github.com/sourcegraph/jsonrpc2"
	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

const ServerName = "tla-sany-lsp"

var (
	// ErrExit is returned after an "exit" that followed "shutdown".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown is returned after an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

type LspServer struct {
	registry          *session.Registry
	logger            *zap.Logger
	version           string
	shutdownRequested bool
	closeOnExit       bool
	doneChan          chan error
}

func NewServer(registry *session.Registry, logger *zap.Logger, version string) *LspServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LspServer{
		registry: registry,
		logger:   logger,
		version:  version,
		doneChan: make(chan error, 1),
	}
}

func decodePayload[T any](ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) *T {
	var payload *T
	if r.Params != nil {
		if err := json.Unmarshal(*r.Params, &payload); err != nil {
			payload = nil
		}
	}

	if payload == nil {
		if !r.Notif {
			c.ReplyWithError(ctx, r.ID, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInvalidParams,
				Message: "Unable to decode params of method " + r.Method,
			})
		}
		return nil
	}
	return payload
}

func (s *LspServer) Handle(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) {
	s.logger.Debug("received", zap.String("method", r.Method), zap.Bool("notification", r.Notif))

	switch r.Method {
	case lsp.MethodInitialize:
		c.Reply(ctx, r.ID, lsp.InitializeResult{
			Capabilities: lsp.ServerCapabilities{
				TextDocumentSync: lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TextDocumentSyncKindNone,
					Save:      &lsp.SaveOptions{IncludeText: false},
				},
				DefinitionProvider:      true,
				HoverProvider:           true,
				WorkspaceSymbolProvider: true,
			},
			ServerInfo: &lsp.ServerInfo{
				Name:    ServerName,
				Version: s.version,
			},
		})
	case lsp.MethodInitialized:
		return
	case lsp.MethodShutdown:
		s.shutdownRequested = true
		s.registry.CloseAll()
		c.Reply(ctx, r.ID, nil)
	case lsp.MethodExit:
		if s.shutdownRequested {
			s.done(ErrExit)
		} else {
			s.done(ErrExitWithoutShutdown)
		}
		if s.closeOnExit {
			c.Close()
		}
	case lsp.MethodTextDocumentDidOpen:
		payload := decodePayload[lsp.DidOpenTextDocumentParams](ctx, c, r)
		if payload == nil {
			return
		}
		s.analyze(ctx, c, payload.TextDocument.URI)
	case lsp.MethodTextDocumentDidSave:
		payload := decodePayload[lsp.DidSaveTextDocumentParams](ctx, c, r)
		if payload == nil {
			return
		}
		s.analyze(ctx, c, payload.TextDocument.URI)
	case lsp.MethodTextDocumentDidClose:
		payload := decodePayload[lsp.DidCloseTextDocumentParams](ctx, c, r)
		if payload == nil {
			return
		}
		s.registry.Close(payload.TextDocument.URI)
		s.publishDiagnostics(ctx, c, payload.TextDocument.URI, nil)
	case lsp.MethodTextDocumentDefinition:
		payload := decodePayload[lsp.DefinitionParams](ctx, c, r)
		if payload == nil {
			return
		}
		if loc := s.definition(ctx, payload.TextDocument.URI, payload.Position); loc != nil {
			c.Reply(ctx, r.ID, loc)
		} else {
			c.Reply(ctx, r.ID, nil)
		}
	case lsp.MethodTextDocumentHover:
		payload := decodePayload[lsp.HoverParams](ctx, c, r)
		if payload == nil {
			return
		}
		if hover := s.hover(ctx, payload.TextDocument.URI, payload.Position); hover != nil {
			c.Reply(ctx, r.ID, hover)
		} else {
			c.Reply(ctx, r.ID, nil)
		}
	case lsp.MethodWorkspaceSymbol:
		payload := decodePayload[lsp.WorkspaceSymbolParams](ctx, c, r)
		if payload == nil {
			return
		}
		c.Reply(ctx, r.ID, s.workspaceSymbols(payload.Query))
	default:
		if !r.Notif {
			c.ReplyWithError(ctx, r.ID, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeMethodNotFound,
				Message: "method not found: " + r.Method,
			})
		}
	}
}

func (s *LspServer) done(err error) {
	select {
	case s.doneChan <- err:
	default:
	}
}

// analyze re-runs the analyzer on the document and publishes the outcome:
// no diagnostics on success, one per error otherwise.
func (s *LspServer) analyze(ctx context.Context, c *jsonrpc2.Conn, docURI uri.URI) {
	out, err := s.registry.Refresh(ctx, docURI)
	if err != nil {
		c.Notify(ctx, lsp.MethodWindowShowMessage, lsp.ShowMessageParams{
			Type:    lsp.MessageTypeError,
			Message: fmt.Sprintf("unable to analyze %s: %s", docURI, err.Error()),
		})
		return
	}
	s.publishDiagnostics(ctx, c, docURI, TranslateErrors(out.Errors))
}

func (s *LspServer) sessionFor(ctx context.Context, docURI uri.URI) (*session.Session, string, bool) {
	path, err := session.PathFromURI(docURI)
	if err != nil {
		s.logger.Debug("ignoring document", zap.String("uri", string(docURI)), zap.Error(err))
		return nil, "", false
	}

	sess, err := s.registry.Session(ctx, docURI)
	if err != nil || sess == nil {
		return nil, "", false
	}
	return sess, path, true
}

func (s *LspServer) definition(ctx context.Context, docURI uri.URI, pos lsp.Position) *lsp.Location {
	sess, path, ok := s.sessionFor(ctx, docURI)
	if !ok {
		return nil
	}

	def, ok := sess.DefinitionAt(path, int(pos.Line), int(pos.Character))
	if !ok {
		return nil
	}

	return &lsp.Location{
		URI:   uri.File(sess.PathOf(def.Location)),
		Range: toRange(def.Location),
	}
}

func (s *LspServer) hover(ctx context.Context, docURI uri.URI, pos lsp.Position) *lsp.Hover {
	sess, path, ok := s.sessionFor(ctx, docURI)
	if !ok {
		return nil
	}

	content, ok := sess.HoverAt(path, int(pos.Line), int(pos.Character))
	if !ok {
		return nil
	}

	rng := lineRange(pos.Line)
	return &lsp.Hover{
		Contents: lsp.MarkupContent{
			Kind:  lsp.Markdown,
			Value: content,
		},
		Range: &rng,
	}
}

// Options configures a server instance.
type Options struct {
	Analyzer    sany.Analyzer
	SearchPaths []string
	Recorder    session.Recorder
	Logger      *zap.Logger
	Version     string
}

func (o Options) newServer() *LspServer {
	registryOpts := []session.Option{
		session.WithSearchPaths(o.SearchPaths...),
		session.WithLogger(o.Logger),
	}
	if o.Recorder != nil {
		registryOpts = append(registryOpts, session.WithRecorder(o.Recorder))
	}
	return NewServer(session.NewRegistry(o.Analyzer, registryOpts...), o.Logger, o.Version)
}

// Start serves one client over stdin and stdout.
func Start(ctx context.Context, opts Options) error {
	return Serve(ctx, &rpc.CustomStream{
		ReadCloser:  os.Stdin,
		WriteCloser: os.Stdout,
	}, opts)
}

// Serve handles one client on stream until it sends "exit", disconnects, or
// the process is interrupted. Requests are handled one at a time.
func Serve(ctx context.Context, stream io.ReadWriteCloser, opts Options) error {
	srv := opts.newServer()
	conn := jsonrpc2.NewConn(
		ctx,
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		srv,
	)
	defer conn.Close()

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(exitSignal)

	select {
	case err := <-srv.doneChan:
		return err
	case <-conn.DisconnectNotify():
		srv.logger.Info("client disconnected")
		return nil
	case sig := <-exitSignal:
		srv.logger.Info("interrupted", zap.String("signal", sig.String()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen serves every TCP connection on addr with its own documents.
func Listen(ctx context.Context, addr string, opts Options) error {
	return rpc.StartServer(ctx, addr, jsonrpc2.VSCodeObjectCodec{}, func() jsonrpc2.Handler {
		srv := opts.newServer()
		srv.closeOnExit = true
		return srv
	})
}
