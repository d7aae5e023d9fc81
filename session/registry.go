package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nedpals/tla-sany-lsp/sany"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is where a document is in its analysis lifecycle.
type State int

const (
	Unopened State = iota
	Analyzing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Analyzing:
		return "analyzing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unopened"
	}
}

// Run describes one completed analysis.
type Run struct {
	URI        uri.URI
	Path       string
	OK         bool
	ErrorCount int
	FirstError string
	Duration   time.Duration
	StartedAt  time.Time
}

// Recorder receives every completed analysis.
type Recorder interface {
	RecordAnalysis(run Run) error
}

// Outcome is the result of re-analyzing a document. Session is set when the
// analysis succeeded, Errors when the specification has problems.
type Outcome struct {
	Session *Session
	Errors  []sany.ErrorRecord
}

func (o Outcome) OK() bool {
	return o.Session != nil
}

var ErrNoResult = errors.New("analyzer returned neither a tree nor errors")

type document struct {
	// run serializes analyses of this document.
	run sync.Mutex

	// guarded by Registry.mu
	state   State
	session *Session
}

// Registry maps document URIs to their latest successfully analyzed Session.
type Registry struct {
	analyzer    sany.Analyzer
	searchPaths []string
	recorder    Recorder
	logger      *zap.Logger

	mu    sync.Mutex
	docs  map[uri.URI]*document
	group singleflight.Group
}

type Option func(*Registry)

// WithSearchPaths adds library directories used to resolve module names.
func WithSearchPaths(paths ...string) Option {
	return func(r *Registry) {
		r.searchPaths = append(r.searchPaths, paths...)
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRegistry(analyzer sany.Analyzer, opts ...Option) *Registry {
	r := &Registry{
		analyzer: analyzer,
		logger:   zap.NewNop(),
		docs:     map[uri.URI]*document{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PathFromURI returns the absolute path of a file URI.
func PathFromURI(u uri.URI) (string, error) {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return "", fmt.Errorf("unsupported document uri %q", u)
	}
	return filepath.Abs(u.Filename())
}

func (r *Registry) document(u uri.URI) *document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[u]
	if !ok {
		doc = &document{}
		r.docs[u] = doc
	}
	return doc
}

func (r *Registry) setState(u uri.URI, doc *document, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs[u] == doc {
		doc.state = state
	}
}

// Refresh analyzes the document again. On success the new Session replaces
// the previous one. When the specification has errors they are returned in
// the Outcome and the previous Session, if any, stays current. A non-nil
// error means the analyzer itself failed.
func (r *Registry) Refresh(ctx context.Context, u uri.URI) (Outcome, error) {
	path, err := PathFromURI(u)
	if err != nil {
		return Outcome{}, err
	}

	doc := r.document(u)
	doc.run.Lock()
	defer doc.run.Unlock()

	r.setState(u, doc, Analyzing)
	r.logger.Debug("analyzing", zap.String("path", path))

	startedAt := time.Now()
	result, err := r.analyzer.Analyze(ctx, path)
	duration := time.Since(startedAt)

	if err == nil && (result == nil || (!result.OK() && len(result.Errors) == 0)) {
		err = ErrNoResult
	}
	if err != nil {
		r.setState(u, doc, Failed)
		r.logger.Error("analyzer failed", zap.String("path", path), zap.Error(err))
		return Outcome{}, err
	}

	r.record(Run{
		URI:        u,
		Path:       path,
		OK:         result.OK(),
		ErrorCount: len(result.Errors),
		FirstError: firstError(result.Errors),
		Duration:   duration,
		StartedAt:  startedAt,
	})

	if !result.OK() {
		r.setState(u, doc, Failed)
		r.logger.Info("specification has errors",
			zap.String("path", path),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("took", duration))
		return Outcome{Errors: result.Errors}, nil
	}

	sess := New(result.Tree, r.searchPaths...)
	sess.URI = u

	r.mu.Lock()
	if r.docs[u] == doc {
		doc.session = sess
		doc.state = Ready
	}
	r.mu.Unlock()

	r.logger.Info("specification analyzed",
		zap.String("path", path),
		zap.Int("nodes", sess.Tree.Len()),
		zap.Int("entries", sess.Index.Len()),
		zap.Strings("files", sess.Index.Files()),
		zap.Duration("took", duration))

	if ce := r.logger.Check(zap.DebugLevel, "indexed tree"); ce != nil {
		var sb strings.Builder
		if err := sess.Dump(&sb); err == nil {
			ce.Write(zap.String("path", path), zap.String("tree", sb.String()))
		}
	}

	return Outcome{Session: sess}, nil
}

func firstError(errs []sany.ErrorRecord) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

func (r *Registry) record(run Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordAnalysis(run); err != nil {
		r.logger.Warn("unable to record analysis", zap.String("path", run.Path), zap.Error(err))
	}
}

// Current returns the latest Session of the document without analyzing it.
func (r *Registry) Current(u uri.URI) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.docs[u]; ok {
		return doc.session
	}
	return nil
}

// Session returns the latest Session of the document, analyzing it first if
// it never succeeded. Concurrent callers share one analysis. A failed
// analysis is not remembered, so the next call tries again. The returned
// Session is nil when the specification has errors.
func (r *Registry) Session(ctx context.Context, u uri.URI) (*Session, error) {
	if sess := r.Current(u); sess != nil {
		return sess, nil
	}

	v, err, _ := r.group.Do(string(u), func() (any, error) {
		if sess := r.Current(u); sess != nil {
			return sess, nil
		}
		out, err := r.Refresh(ctx, u)
		if err != nil {
			return nil, err
		}
		return out.Session, nil
	})
	if err != nil {
		return nil, err
	}

	sess, _ := v.(*Session)
	return sess, nil
}

// State reports the lifecycle state of the document.
func (r *Registry) State(u uri.URI) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.docs[u]; ok {
		return doc.state
	}
	return Unopened
}

// Close forgets the document and its Session.
func (r *Registry) Close(u uri.URI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, u)
}

// CloseAll forgets every document.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = map[uri.URI]*document{}
}

// Sessions returns the current Session of every ready document, ordered by URI.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.docs))
	for _, doc := range r.docs {
		if doc.session != nil {
			sessions = append(sessions, doc.session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].URI < sessions[j].URI
	})
	return sessions
}
