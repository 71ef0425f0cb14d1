package graph

import (
	"fmt"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Overlay contains the path of one unit of work to highlight on the graph.
type Overlay struct {
	VisitedLocations []string
	CurrentLocation  string
	Failed           bool
}

// OverlayFromHistory builds an overlay from a unit of work and its history.
func OverlayFromHistory(u *domain.UOW, history []domain.HistoryEntry) *Overlay {
	o := &Overlay{CurrentLocation: u.Location, Failed: u.Status == domain.StatusFailed}
	for _, e := range history {
		if e.PreviousLocation != "" {
			o.VisitedLocations = append(o.VisitedLocations, e.PreviousLocation)
		}
		o.VisitedLocations = append(o.VisitedLocations, e.NewLocation)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of a workflow.
// Shapes:
// - Terminal: ((Circle))
// - Location without policy: [/Parallelogram/]
// - Default: [Rectangle]
// Branches are labelled with their condition; default branches are dashed and
// on_error branches are drawn with a warning marker.
func GenerateMermaid(wf *domain.Workflow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, loc := range wf.Locations {
		safeID := sanitizeMermaidID(loc.ID)

		opener, closer := "[", "]"
		switch {
		case loc.Terminal:
			opener, closer = "((", "))"
		case loc.Policy == nil:
			opener, closer = "[/", "/]"
		}
		label := loc.ID
		if loc.Role != "" {
			label = fmt.Sprintf("%s <br/> %s", loc.ID, loc.Role)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		if loc.Policy == nil {
			continue
		}
		for i, b := range loc.Policy.Branches {
			safeTo := sanitizeMermaidID(b.Destination)
			var arrow string
			switch b.Kind() {
			case domain.BranchDefault:
				arrow = "-.->"
			case domain.BranchOnError:
				arrow = "-. ⚠ on_error .->"
			default:
				// Mermaid labels cannot carry double quotes.
				cond := strings.ReplaceAll(b.Condition, "\"", "'")
				arrow = fmt.Sprintf("-- \"%d: %s\" -->", i, cond)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedLocations {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] {
				continue
			}
			seen[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
		}

		if overlay.CurrentLocation != "" {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", sanitizeMermaidID(overlay.CurrentLocation), class))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
