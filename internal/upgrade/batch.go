package upgrade

import "github.com/porgproject/porg/internal/depgraph"

// partitionBatches groups pending (already in dependency order, per
// depgraph.UpgradePlan) into the widest batches such that no package in a
// batch depends on another package in the same batch: it walks pending in
// order, and whenever the next name depends (directly or transitively) on
// something already placed in the current batch, it starts a new batch.
// This is the grouping spec.md §4.I's parallelism note asks for: pending
// is already a valid total order, and each name's dependency closure
// (graph.Resolve, called once per name) decides the batch boundaries.
func partitionBatches(pending []string, graph *depgraph.Graph) [][]string {
	var batches [][]string
	var current []string
	inCurrent := map[string]bool{}

	for _, name := range pending {
		deps, err := graph.Resolve(name)
		dependsOnCurrent := false
		if err == nil {
			for _, d := range deps {
				if d == name {
					continue
				}
				if inCurrent[d] {
					dependsOnCurrent = true
					break
				}
			}
		}
		if dependsOnCurrent {
			batches = append(batches, current)
			current = nil
			inCurrent = map[string]bool{}
		}
		current = append(current, name)
		inCurrent[name] = true
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
