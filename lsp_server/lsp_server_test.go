package lsp_server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nedpals/tla-sany-lsp/rpc"
	"github.com/nedpals/tla-sany-lsp/sany"
	"github.com/nedpals/tla-sany-lsp/session"
	"github.com/sourcegraph/jsonrpc2"
	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const counterSource = `---- MODULE Counter ----
VARIABLE x
(* doc *)
Init == x = 0
Next == Init
====
`

func loc(l0, c0, l1, c1 int) sany.Location {
	return sany.Location{Source: "Counter", BeginLine: l0, BeginColumn: c0, EndLine: l1, EndColumn: c1}
}

func counterTree(file string) *sany.Tree {
	xDecl := &sany.Node{ID: 2, Kind: sany.OpDeclKind, Name: "x", Location: loc(2, 10, 2, 10)}
	xUse := &sany.Node{ID: 5, Kind: sany.ExprKind, Name: "x", Location: loc(4, 9, 4, 9)}
	eq := &sany.Node{ID: 4, Kind: sany.ExprKind, Name: "=", Location: loc(4, 9, 4, 13), Children: []*sany.Node{xUse}}
	initDef := &sany.Node{ID: 3, Kind: sany.OpDefKind, Name: "Init", Location: loc(4, 1, 4, 13),
		PreComments: []string{"(* doc *)"}, Children: []*sany.Node{eq}}
	initUse := &sany.Node{ID: 7, Kind: sany.ExprKind, Name: "Init", Location: loc(5, 9, 5, 12)}
	next := &sany.Node{ID: 6, Kind: sany.OpDefKind, Name: "Next", Location: loc(5, 1, 5, 12), Children: []*sany.Node{initUse}}
	root := &sany.Node{ID: 1, Kind: sany.ModuleKind, Name: "Counter", Location: loc(1, 1, 6, 4),
		Children: []*sany.Node{xDecl, initDef, next}}

	return &sany.Tree{
		File:    file,
		Root:    root,
		Context: sany.Context{"x": xDecl, "Init": initDef, "Next": next},
	}
}

// fakeAnalyzer reports a syntax error on line 3 while broken is set and the
// Counter tree otherwise.
type fakeAnalyzer struct {
	mu     sync.Mutex
	broken bool
	crash  bool
	calls  int
}

func (a *fakeAnalyzer) set(broken bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broken = broken
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, file string) (*sany.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if a.crash {
		return nil, errors.New("analyzer exited with code 1")
	}
	if a.broken {
		return sany.Failed(sany.ErrorRecord{
			Kind:     sany.ParseError,
			Message:  "Encountered \"==\" at line 3, column 1",
			Location: loc(3, 1, 3, 5),
		}), nil
	}
	return sany.Succeeded(counterTree(file)), nil
}

type testEnv struct {
	srv         *LspServer
	client      *rpc.Client
	analyzer    *fakeAnalyzer
	docURI      uri.URI
	path        string
	diagnostics chan lsp.PublishDiagnosticsParams
	messages    chan lsp.ShowMessageParams
}

func Setup(t *testing.T) (func(), *testEnv) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Counter.tla")
	if err := os.WriteFile(path, []byte(counterSource), 0644); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		analyzer:    &fakeAnalyzer{},
		docURI:      uri.File(path),
		path:        path,
		diagnostics: make(chan lsp.PublishDiagnosticsParams, 16),
		messages:    make(chan lsp.ShowMessageParams, 16),
	}

	serverConn, clientConn := net.Pipe()
	env.srv = NewServer(session.NewRegistry(env.analyzer), nil, "1.0")

	// Connect piped serverConn to a jsonrpc2.Conn
	srvConn := jsonrpc2.NewConn(
		context.Background(),
		jsonrpc2.NewBufferedStream(serverConn, jsonrpc2.VSCodeObjectCodec{}),
		env.srv,
	)

	// Create a client for lsp
	env.client = &rpc.Client{HandleFunc: func(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) {
		switch r.Method {
		case lsp.MethodTextDocumentPublishDiagnostics:
			var params lsp.PublishDiagnosticsParams
			if err := json.Unmarshal(*r.Params, &params); err == nil {
				env.diagnostics <- params
			}
		case lsp.MethodWindowShowMessage:
			var params lsp.ShowMessageParams
			if err := json.Unmarshal(*r.Params, &params); err == nil {
				env.messages <- params
			}
		}
	}}
	env.client.Conn = jsonrpc2.NewConn(
		context.Background(),
		jsonrpc2.NewBufferedStream(clientConn, jsonrpc2.VSCodeObjectCodec{}),
		env.client,
	)

	return func() {
		env.client.Close()
		srvConn.Close()
	}, env
}

func initialize(client *rpc.Client) (lsp.InitializeResult, error) {
	var result lsp.InitializeResult
	err := client.Call(lsp.MethodInitialize, nil, &result)
	if err == nil {
		client.Notify(lsp.MethodInitialized, nil)
	}
	return result, err
}

func (env *testEnv) waitDiagnostics(t *testing.T) lsp.PublishDiagnosticsParams {
	t.Helper()
	select {
	case params := <-env.diagnostics:
		return params
	case <-time.After(2 * time.Second):
		t.Fatal("Expected diagnostics to be published")
	}
	return lsp.PublishDiagnosticsParams{}
}

func (env *testEnv) open(t *testing.T) lsp.PublishDiagnosticsParams {
	t.Helper()
	err := env.client.Notify(lsp.MethodTextDocumentDidOpen, lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        env.docURI,
			LanguageID: "tlaplus",
			Text:       counterSource,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return env.waitDiagnostics(t)
}

func (env *testEnv) position(line, character uint32) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: env.docURI},
		Position:     lsp.Position{Line: line, Character: character},
	}
}

func (env *testEnv) definition(t *testing.T, line, character uint32) *lsp.Location {
	t.Helper()
	var result *lsp.Location
	err := env.client.Call(lsp.MethodTextDocumentDefinition, lsp.DefinitionParams{
		TextDocumentPositionParams: env.position(line, character),
	}, &result)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func (env *testEnv) hover(t *testing.T, line, character uint32) *lsp.Hover {
	t.Helper()
	var result *lsp.Hover
	err := env.client.Call(lsp.MethodTextDocumentHover, lsp.HoverParams{
		TextDocumentPositionParams: env.position(line, character),
	}, &result)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestInitialize(t *testing.T) {
	close, env := Setup(t)
	defer close()

	result, err := initialize(env.client)
	if err != nil {
		t.Fatal(err)
	}

	if result.Capabilities.TextDocumentSync == nil {
		t.Error("Expected TextDocumentSync to be non-nil")
	}

	if opts, ok := result.Capabilities.TextDocumentSync.(map[string]interface{}); !ok || opts["openClose"] != true {
		t.Errorf("Expected %v, got %v", "openClose sync", result.Capabilities.TextDocumentSync)
	}

	if result.Capabilities.DefinitionProvider != true {
		t.Errorf("Expected %v, got %v", true, result.Capabilities.DefinitionProvider)
	}

	if result.Capabilities.HoverProvider != true {
		t.Errorf("Expected %v, got %v", true, result.Capabilities.HoverProvider)
	}

	if result.ServerInfo.Name != ServerName {
		t.Errorf("Expected %v, got %v", ServerName, result.ServerInfo.Name)
	}

	if result.ServerInfo.Version != env.srv.version {
		t.Errorf("Expected %v, got %v", env.srv.version, result.ServerInfo.Version)
	}
}

func TestShutdownThenExit(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	var result interface{}
	if err := env.client.Call(lsp.MethodShutdown, nil, &result); err != nil {
		t.Fatal(err)
	}

	if result != nil {
		t.Errorf("Expected nil, got %v", result)
	}

	if n := len(env.srv.registry.Sessions()); n != 0 {
		t.Errorf("Expected %v, got %v", 0, n)
	}

	if err := env.client.Notify(lsp.MethodExit, nil); err != nil {
		t.Fatal(err)
	}

	if err := <-env.srv.doneChan; !errors.Is(err, ErrExit) {
		t.Errorf("Expected %v, got %v", ErrExit, err)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	if err := env.client.Notify(lsp.MethodExit, nil); err != nil {
		t.Fatal(err)
	}

	if err := <-env.srv.doneChan; !errors.Is(err, ErrExitWithoutShutdown) {
		t.Errorf("Expected %v, got %v", ErrExitWithoutShutdown, err)
	}
}

func TestMethodTextDocumentDidOpen(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	params := env.open(t)
	if params.URI != env.docURI {
		t.Errorf("Expected %v, got %v", env.docURI, params.URI)
	}

	if len(params.Diagnostics) != 0 {
		t.Errorf("Expected %v, got %v", 0, len(params.Diagnostics))
	}

	if state := env.srv.registry.State(env.docURI); state != session.Ready {
		t.Errorf("Expected %v, got %v", session.Ready, state)
	}
}

func TestMethodTextDocumentDidOpen_SyntaxError(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	env.analyzer.set(true)
	params := env.open(t)

	if len(params.Diagnostics) != 1 {
		t.Fatalf("Expected %v, got %v", 1, len(params.Diagnostics))
	}

	diag := params.Diagnostics[0]
	if diag.Severity != lsp.DiagnosticSeverityError {
		t.Errorf("Expected %v, got %v", lsp.DiagnosticSeverityError, diag.Severity)
	}

	if diag.Range.Start.Line > 2 || diag.Range.End.Line < 2 {
		t.Errorf("Expected range to cover line 2, got %v", diag.Range)
	}

	if diag.Code != "parse" {
		t.Errorf("Expected %v, got %v", "parse", diag.Code)
	}

	if !strings.Contains(diag.Message, "Encountered") {
		t.Errorf("Expected %v, got %v", "the analyzer message", diag.Message)
	}

	if loc := env.definition(t, 3, 8); loc != nil {
		t.Errorf("Expected nil, got %v", loc)
	}
}

func TestMethodTextDocumentDidOpen_AnalyzerCrash(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	env.analyzer.crash = true
	err := env.client.Notify(lsp.MethodTextDocumentDidOpen, lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: env.docURI},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-env.messages:
		if msg.Type != lsp.MessageTypeError {
			t.Errorf("Expected %v, got %v", lsp.MessageTypeError, msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected an error message")
	}
}

func TestMethodTextDocumentDidOpen_NoPayload(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	env.client.Notify(lsp.MethodTextDocumentDidOpen, nil)

	// the connection keeps serving requests
	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
}

func TestMethodTextDocumentDidSave_AfterFix(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	env.analyzer.set(true)
	if params := env.open(t); len(params.Diagnostics) != 1 {
		t.Fatalf("Expected %v, got %v", 1, len(params.Diagnostics))
	}

	env.analyzer.set(false)
	err := env.client.Notify(lsp.MethodTextDocumentDidSave, lsp.DidSaveTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: env.docURI},
	})
	if err != nil {
		t.Fatal(err)
	}

	if params := env.waitDiagnostics(t); len(params.Diagnostics) != 0 {
		t.Errorf("Expected %v, got %v", 0, len(params.Diagnostics))
	}

	if loc := env.definition(t, 3, 8); loc == nil {
		t.Error("Expected definition after the fix")
	}
}

func TestMethodTextDocumentDidClose(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	err := env.client.Notify(lsp.MethodTextDocumentDidClose, lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: env.docURI},
	})
	if err != nil {
		t.Fatal(err)
	}

	params := env.waitDiagnostics(t)
	if params.URI != env.docURI || len(params.Diagnostics) != 0 {
		t.Errorf("Expected empty diagnostics for %v, got %v", env.docURI, params)
	}

	if state := env.srv.registry.State(env.docURI); state != session.Unopened {
		t.Errorf("Expected %v, got %v", session.Unopened, state)
	}
}

func TestMethodTextDocumentDefinition(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	// x in the body of Init
	loc := env.definition(t, 3, 8)
	if loc == nil {
		t.Fatal("Expected a definition")
	}

	if loc.URI != uri.File(env.path) {
		t.Errorf("Expected %v, got %v", uri.File(env.path), loc.URI)
	}

	exp := lsp.Range{
		Start: lsp.Position{Line: 1, Character: 9},
		End:   lsp.Position{Line: 1, Character: 9},
	}
	if loc.Range != exp {
		t.Errorf("Expected %v, got %v", exp, loc.Range)
	}

	if loc := env.definition(t, 30, 0); loc != nil {
		t.Errorf("Expected nil, got %v", loc)
	}
}

func TestMethodTextDocumentDefinition_Lazy(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	if loc := env.definition(t, 4, 9); loc == nil || loc.Range.Start.Line != 3 {
		t.Errorf("Expected the Init definition, got %v", loc)
	}

	if env.analyzer.calls != 1 {
		t.Errorf("Expected %v, got %v", 1, env.analyzer.calls)
	}
}

func TestMethodTextDocumentDefinition_NoPayload(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}

	var result interface{}
	err := env.client.Call(lsp.MethodTextDocumentDefinition, nil, &result)

	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected a jsonrpc2 error, got %v", err)
	}

	if rpcErr.Message != "Unable to decode params of method textDocument/definition" {
		t.Errorf("Expected %v, got %v", "decode error", rpcErr.Message)
	}
}

func TestMethodTextDocumentHover(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	// use of Init in Next
	hover := env.hover(t, 4, 10)
	if hover == nil {
		t.Fatal("Expected hover content")
	}

	if !strings.Contains(hover.Contents.Value, "(* doc *)") {
		t.Errorf("Expected %v, got %v", "(* doc *)", hover.Contents.Value)
	}

	if hover.Contents.Kind != lsp.Markdown {
		t.Errorf("Expected %v, got %v", lsp.Markdown, hover.Contents.Kind)
	}

	exp := lsp.Range{
		Start: lsp.Position{Line: 4, Character: 0},
		End:   lsp.Position{Line: 5, Character: 0},
	}
	if hover.Range == nil || *hover.Range != exp {
		t.Errorf("Expected %v, got %v", exp, hover.Range)
	}
}

func TestMethodTextDocumentHover_CommentLine(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	if hover := env.hover(t, 2, 3); hover != nil {
		t.Errorf("Expected nil, got %v", hover)
	}
}

func TestMethodWorkspaceSymbol(t *testing.T) {
	close, env := Setup(t)
	defer close()

	if _, err := initialize(env.client); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	var result []lsp.SymbolInformation
	err := env.client.Call(lsp.MethodWorkspaceSymbol, lsp.WorkspaceSymbolParams{Query: "ini"}, &result)
	if err != nil {
		t.Fatal(err)
	}

	if len(result) != 1 {
		t.Fatalf("Expected %v, got %v", 1, len(result))
	}

	if result[0].Name != "Init" || result[0].Kind != lsp.SymbolKindFunction {
		t.Errorf("Expected %v, got %v", "Init function", result[0])
	}

	if result[0].ContainerName != "Counter.tla" {
		t.Errorf("Expected %v, got %v", "Counter.tla", result[0].ContainerName)
	}
}

func TestUnknownMethod(t *testing.T) {
	close, env := Setup(t)
	defer close()

	var result interface{}
	err := env.client.Call("textDocument/completion", nil, &result)

	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("Expected %v, got %v", jsonrpc2.CodeMethodNotFound, err)
	}
}

func TestTranslateErrors(t *testing.T) {
	errs := []sany.ErrorRecord{
		{Message: "at origin", Location: sany.Location{BeginLine: 1, BeginColumn: 0, EndLine: 1, EndColumn: 0}},
		{Message: "unknown", Location: sany.Location{}},
		{Kind: sany.SemanticError, Message: "span", Location: loc(3, 6, 4, 2)},
	}

	diagnostics := TranslateErrors(errs)
	if len(diagnostics) != len(errs) {
		t.Fatalf("Expected %v, got %v", len(errs), len(diagnostics))
	}

	zero := lsp.Range{}
	if diagnostics[0].Range != zero || diagnostics[1].Range != zero {
		t.Errorf("Expected %v, got %v and %v", zero, diagnostics[0].Range, diagnostics[1].Range)
	}

	exp := lsp.Range{
		Start: lsp.Position{Line: 2, Character: 5},
		End:   lsp.Position{Line: 3, Character: 1},
	}
	if diagnostics[2].Range != exp {
		t.Errorf("Expected %v, got %v", exp, diagnostics[2].Range)
	}

	for i, d := range diagnostics {
		if d.Severity != lsp.DiagnosticSeverityError {
			t.Errorf("Expected %v, got %v", lsp.DiagnosticSeverityError, d.Severity)
		}
		if d.Message != errs[i].Message {
			t.Errorf("Expected %v, got %v", errs[i].Message, d.Message)
		}
	}

	if diagnostics[0].Code != "parse" {
		t.Errorf("Expected %v, got %v", "parse", diagnostics[0].Code)
	}

	if diagnostics[2].Code != "semantic" {
		t.Errorf("Expected %v, got %v", "semantic", diagnostics[2].Code)
	}
}

func TestSafeUint32(t *testing.T) {
	if v := safeUint32(-4); v != 0 {
		t.Errorf("Expected %v, got %v", 0, v)
	}
	if v := safeUint32(42); v != 42 {
		t.Errorf("Expected %v, got %v", 42, v)
	}
}
