package authz

import "sort"

// closure walks adj from start and returns every reachable node, excluding
// start itself. Diamonds collapse: each node is visited once regardless of
// how many paths lead to it. Any cycle in the reachable subgraph, through
// start or not, surfaces as ErrCycleDetected while the walk still terminates
// and reports what it reached.
func closure(adj map[string][]string, start string) (map[string]struct{}, error) {
	const (
		gray  = 1
		black = 2
	)
	color := map[string]int{start: gray}
	reached := make(map[string]struct{})

	type frame struct {
		node string
		next int
	}
	stack := []frame{{node: start}}
	var err error
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := adj[top.node]
		if top.next < len(kids) {
			next := kids[top.next]
			top.next++
			switch color[next] {
			case gray:
				// Back edge. Write-time checks forbid this; imported data
				// can still carry it. Report, keep the walk going.
				err = ErrCycleDetected
			case black:
				// Diamond: already fully explored.
			default:
				color[next] = gray
				reached[next] = struct{}{}
				stack = append(stack, frame{node: next})
			}
			continue
		}
		color[top.node] = black
		stack = stack[:len(stack)-1]
	}
	return reached, err
}

// sortedNames flattens a set into a sorted slice.
func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// findCycles returns every node that sits on a child-edge cycle, using
// iterative three-color DFS. Used by the integrity scan over imported data.
func findCycles(children map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	onCycle := make(map[string]struct{})

	type frame struct {
		node string
		next int
	}
	roots := make([]string, 0, len(children))
	for node := range children {
		roots = append(roots, node)
	}
	sort.Strings(roots)

	for _, root := range roots {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			kids := children[top.node]
			if top.next < len(kids) {
				child := kids[top.next]
				top.next++
				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{node: child})
				case gray:
					// Back edge: everything on the stack from child down is cyclic.
					mark := false
					for _, f := range stack {
						if f.node == child {
							mark = true
						}
						if mark {
							onCycle[f.node] = struct{}{}
						}
					}
				}
				continue
			}
			color[top.node] = black
			stack = stack[:len(stack)-1]
		}
	}
	return sortedNames(onCycle)
}
