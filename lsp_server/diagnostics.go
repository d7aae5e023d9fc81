package lsp_server

import (
	"context"

	"github.com/nedpals/tla-sany-lsp/sany"
	"github.com/sourcegraph/jsonrpc2"
	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

const DiagnosticSource = "sany"

// TranslateErrors turns analyzer errors into diagnostics, one per error, with
// the error message as is. The diagnostic code tells parse errors from
// semantic ones.
func TranslateErrors(errs []sany.ErrorRecord) []lsp.Diagnostic {
	diagnostics := make([]lsp.Diagnostic, 0, len(errs))
	for _, e := range errs {
		diagnostics = append(diagnostics, lsp.Diagnostic{
			Range:    toRange(e.Location),
			Severity: lsp.DiagnosticSeverityError,
			Code:     e.Kind.String(),
			Source:   DiagnosticSource,
			Message:  e.Message,
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx context.Context, c *jsonrpc2.Conn, docURI uri.URI, diagnostics []lsp.Diagnostic) {
	if diagnostics == nil {
		diagnostics = []lsp.Diagnostic{}
	}

	err := c.Notify(ctx, lsp.MethodTextDocumentPublishDiagnostics, lsp.PublishDiagnosticsParams{
		URI:         docURI,
		Diagnostics: diagnostics,
	})
	if err != nil {
		s.logger.Warn("unable to publish diagnostics", zap.String("uri", string(docURI)), zap.Error(err))
	}
}
