package domain

import (
	"fmt"
	"strings"
)

// PlanRollout returns the order in which the components of a request are
// deployed, as indices into components. A component is deployed after
// every requested component whose output it consumes through the
// transform table. Components with no dependency between them keep
// their declaration order. Cycles are rejected before anything is
// deployed.
func PlanRollout(components []Component, table TransformTable) ([]int, error) {
	n := len(components)
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for dest := range components {
		for src := range components {
			if src == dest {
				continue
			}
			if table.DependsOn(components[dest].ProviderKind, components[src].ProviderKind) {
				dependents[src] = append(dependents[src], dest)
				inDegree[dest]++
			}
		}
	}

	// Kahn's algorithm, always picking the lowest ready index so the
	// result is stable.
	order := make([]int, 0, n)
	placed := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(unplaced(components, placed), ", "))
		}
		placed[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}
	return order, nil
}

func unplaced(components []Component, placed []bool) []string {
	var kinds []string
	for i, c := range components {
		if !placed[i] {
			kinds = append(kinds, string(c.ProviderKind))
		}
	}
	return kinds
}

// CheckRequest verifies the invariants the workflows rely on: at least
// one component and unique provider kinds, since results are keyed by
// provider kind.
func CheckRequest(req DeployRequest) error {
	if len(req.Components) == 0 {
		return fmt.Errorf("%w: request has no components", ErrInvalidArgument)
	}
	seen := make(map[ProviderKind]bool, len(req.Components))
	for _, c := range req.Components {
		if c.ProviderKind == "" {
			return fmt.Errorf("%w: component %q has no provider kind", ErrInvalidArgument, c.Name)
		}
		if seen[c.ProviderKind] {
			return fmt.Errorf("%w: provider kind %q appears more than once", ErrInvalidArgument, c.ProviderKind)
		}
		seen[c.ProviderKind] = true
	}
	return nil
}
