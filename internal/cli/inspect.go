package cli

import (
	"context"
	"fmt"
	"io"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/presentation/graph"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/presentation/tui"
)

// ShowHistory writes the unit of work, its history and its audit trail.
func ShowHistory(ctx context.Context, sys *chameleon.System, w io.Writer, uowID string) error {
	u, err := sys.Engine.Get(ctx, uowID)
	if err != nil {
		return err
	}
	history, err := sys.Engine.History(ctx, uowID)
	if err != nil {
		return err
	}
	audit, err := sys.Engine.Audit(ctx, uowID)
	if err != nil {
		return err
	}
	return tui.Write(w, tui.HistoryMarkdown(u, history)+"\n"+tui.AuditMarkdown(audit))
}

// Verify writes the integrity report for a unit of work and reports whether
// both the content hash and the history chain hold.
func Verify(ctx context.Context, sys *chameleon.System, w io.Writer, uowID string) (bool, error) {
	res, err := sys.Engine.VerifyIntegrity(ctx, uowID)
	if err != nil {
		return false, err
	}
	report, err := sys.Engine.VerifyChain(ctx, uowID)
	if err != nil {
		return false, err
	}
	if err := tui.Write(w, tui.VerificationMarkdown(res, report)); err != nil {
		return false, err
	}
	return res.IsValid && report.Valid(), nil
}

// Graph writes the workflow as a Mermaid diagram. When uowID is set the path
// taken by that unit of work is highlighted.
func Graph(ctx context.Context, sys *chameleon.System, w io.Writer, uowID string) error {
	var overlay *graph.Overlay
	if uowID != "" {
		u, err := sys.Engine.Get(ctx, uowID)
		if err != nil {
			return err
		}
		history, err := sys.Engine.History(ctx, uowID)
		if err != nil {
			return err
		}
		overlay = graph.OverlayFromHistory(u, history)
	}
	_, err := fmt.Fprint(w, graph.GenerateMermaid(sys.Engine.Workflow(), overlay))
	return err
}
