package authz

import (
	"context"
	"sort"
)

// IntegrityReport summarises structural problems found in the stored graph.
type IntegrityReport struct {
	// CycleMembers lists item names that sit on at least one edge cycle.
	// Writes reject cycles, so a non-empty list points at imported data.
	CycleMembers []string
	// DanglingRules lists items whose rule_name has no matching rule row.
	DanglingRules []string
	// ItemsChecked is the number of items inspected.
	ItemsChecked int
}

// Clean reports whether no problems were found.
func (r IntegrityReport) Clean() bool {
	return len(r.CycleMembers) == 0 && len(r.DanglingRules) == 0
}

// Integrity scans a consistent snapshot of the graph for cycles and
// dangling rule references.
func (m *Manager) Integrity(ctx context.Context) (IntegrityReport, error) {
	state, err := m.snapshot(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{
		CycleMembers: findCycles(state.Children),
		ItemsChecked: len(state.Items),
	}
	for _, item := range state.Items {
		if item.RuleName == "" {
			continue
		}
		if _, ok := state.Rules[item.RuleName]; !ok {
			report.DanglingRules = append(report.DanglingRules, item.Name)
		}
	}
	sort.Strings(report.DanglingRules)
	return report, nil
}
