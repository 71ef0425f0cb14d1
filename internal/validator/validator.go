package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Report is the structural analysis of a workflow graph.
type Report struct {
	// EntryPoints are locations no policy routes to. Roots are created there.
	EntryPoints []string
	// Stranded are locations from which no terminal location can be reached.
	Stranded []string
	// Missing lists "from -> to" edges whose destination does not exist.
	Missing []string
}

// Analyze crawls the workflow graph. It never fails; Check turns the report
// into an error.
func Analyze(wf *domain.Workflow) Report {
	known := make(map[string]bool, len(wf.Locations))
	for _, loc := range wf.Locations {
		known[loc.ID] = true
	}

	incoming := make(map[string]bool)
	reverse := make(map[string][]string)
	var rep Report
	for _, loc := range wf.Locations {
		if loc.Policy == nil {
			continue
		}
		for _, b := range loc.Policy.Branches {
			if !known[b.Destination] {
				rep.Missing = append(rep.Missing, fmt.Sprintf("%s -> %s", loc.ID, b.Destination))
				continue
			}
			if b.Destination != loc.ID {
				incoming[b.Destination] = true
			}
			reverse[b.Destination] = append(reverse[b.Destination], loc.ID)
		}
	}

	// Walk backwards from every terminal location.
	canFinish := make(map[string]bool)
	var queue []string
	for _, loc := range wf.Locations {
		if loc.Terminal {
			queue = append(queue, loc.ID)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if canFinish[current] {
			continue
		}
		canFinish[current] = true
		queue = append(queue, reverse[current]...)
	}

	for _, loc := range wf.Locations {
		if !incoming[loc.ID] && !loc.Terminal {
			rep.EntryPoints = append(rep.EntryPoints, loc.ID)
		}
		if !canFinish[loc.ID] {
			rep.Stranded = append(rep.Stranded, loc.ID)
		}
	}
	sort.Strings(rep.EntryPoints)
	sort.Strings(rep.Stranded)
	sort.Strings(rep.Missing)
	return rep
}

// Check reports broken links and locations that can never finish.
func Check(wf *domain.Workflow) error {
	rep := Analyze(wf)
	var errors []string
	for _, m := range rep.Missing {
		errors = append(errors, fmt.Sprintf("Missing location: '%s'", m))
	}
	for _, s := range rep.Stranded {
		errors = append(errors, fmt.Sprintf("No terminal location reachable from '%s'", s))
	}
	if len(rep.EntryPoints) == 0 {
		errors = append(errors, "No entry point: every location is a routing destination")
	}
	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}
