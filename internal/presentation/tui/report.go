package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
)

// HistoryMarkdown renders a unit of work and its history as a markdown report.
func HistoryMarkdown(u *domain.UOW, entries []domain.HistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", u.ID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", u.Status)
	fmt.Fprintf(&sb, "- **Location:** %s\n", u.Location)
	if u.ParentID != nil {
		fmt.Fprintf(&sb, "- **Parent:** %s\n", *u.ParentID)
	}
	if u.WorkerID != "" {
		fmt.Fprintf(&sb, "- **Worker:** %s\n", u.WorkerID)
	}
	if u.ChildCount > 0 {
		fmt.Fprintf(&sb, "- **Children:** %d/%d finished\n", u.FinishedChildCount, u.ChildCount)
	}
	fmt.Fprintf(&sb, "- **Version:** %d\n", u.Version)
	fmt.Fprintf(&sb, "- **Hash:** `%s`\n\n", short(u.ContentHash))

	sb.WriteString("## History\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No history recorded._\n")
		return sb.String()
	}
	sb.WriteString("| # | Time | Event | Status | Location | Worker | Rationale |\n")
	sb.WriteString("|---|------|-------|--------|----------|--------|-----------|\n")
	for _, e := range entries {
		status := string(e.NewStatus)
		if e.PreviousStatus != "" && e.PreviousStatus != e.NewStatus {
			status = fmt.Sprintf("%s → %s", e.PreviousStatus, e.NewStatus)
		}
		location := e.NewLocation
		if e.PreviousLocation != "" && e.PreviousLocation != e.NewLocation {
			location = fmt.Sprintf("%s → %s", e.PreviousLocation, e.NewLocation)
		}
		worker := "-"
		if e.WorkerID != nil {
			worker = *e.WorkerID
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s | %s |\n",
			e.Seq, e.Timestamp.UTC().Format(time.RFC3339), e.EventType,
			status, location, worker, cell(e.Rationale))
	}
	return sb.String()
}

// AuditMarkdown renders audit entries (rejections and drift) as a table.
func AuditMarkdown(entries []domain.AuditEntry) string {
	var sb strings.Builder
	sb.WriteString("## Audit\n\n")
	if len(entries) == 0 {
		sb.WriteString("_Nothing audited._\n")
		return sb.String()
	}
	sb.WriteString("| Time | Event | Status | Requested | Reason |\n")
	sb.WriteString("|------|-------|--------|-----------|--------|\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.Status, e.Requested, cell(e.Reason))
	}
	return sb.String()
}

// VerificationMarkdown renders the content hash check and the history chain report.
func VerificationMarkdown(res integrity.Result, report persistence.ChainReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Verification of %s\n\n", res.UOWID)

	sb.WriteString("## Content hash\n\n")
	if res.IsValid {
		fmt.Fprintf(&sb, "✅ Stored hash matches attributes (`%s`).\n\n", short(res.StoredHash))
	} else {
		fmt.Fprintf(&sb, "❌ **Drift detected.** Stored `%s`, computed `%s`.\n\n", short(res.StoredHash), short(res.CurrentHash))
	}

	sb.WriteString("## History chain\n\n")
	fmt.Fprintf(&sb, "- Entries: %d\n", report.Entries)
	fmt.Fprintf(&sb, "- Head matches current hash: %t\n", report.HeadMatches)
	if len(report.Breaks) == 0 {
		sb.WriteString("- Breaks: none\n")
		return sb.String()
	}
	breaks := append([]integrity.ChainBreak(nil), report.Breaks...)
	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Seq < breaks[j].Seq })
	sb.WriteString("\n| Seq | Expected | Got |\n|-----|----------|-----|\n")
	for _, b := range breaks {
		fmt.Fprintf(&sb, "| %d | %s | %s |\n", b.Seq, hashOrNone(b.Expected), hashOrNone(b.Got))
	}
	return sb.String()
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func hashOrNone(h *string) string {
	if h == nil {
		return "none"
	}
	return "`" + short(*h) + "`"
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
