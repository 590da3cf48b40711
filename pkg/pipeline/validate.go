package pipeline

import (
	"github.com/rotisserie/eris"
)

// Validate checks a composed tree before it runs. Members of a parallel group must not claim
// overlapping outputs and must not contain the same task twice.
func Validate(node Node) error {
	switch n := node.(type) {
	case *Task:
		if n.Short == "" {
			return eris.New("found a task without a name")
		}
		if n.Fn == nil {
			return eris.Errorf("task %s has no function", n.Short)
		}
		return nil
	case *Group:
		for _, step := range n.Steps {
			if step == nil {
				return eris.Errorf("group %s contains a nil step", n.Short)
			}

			if err := Validate(step); err != nil {
				return eris.Wrapf(err, "invalid step in %s", n.Short)
			}
		}

		if n.Parallel {
			return validateParallel(n)
		}
		return nil
	case nil:
		return eris.New("nil node")
	}

	return eris.Errorf("unexpected node type %T", node)
}

func validateParallel(g *Group) error {
	seen := make(map[string]bool)
	for _, step := range g.Steps {
		for _, task := range Tasks(step) {
			if seen[task.Short] {
				return eris.Errorf("parallel group %s runs task %s more than once", g.Short, task.Short)
			}
			seen[task.Short] = true
		}
	}

	for i := 0; i < len(g.Steps); i++ {
		for j := i + 1; j < len(g.Steps); j++ {
			for _, a := range g.Steps[i].Claims() {
				for _, b := range g.Steps[j].Claims() {
					if a.Overlaps(b) {
						return eris.Errorf("parallel group %s: %s (%s) and %s (%s) write to the same files",
							g.Short, g.Steps[i].Name(), a, g.Steps[j].Name(), b)
					}
				}
			}
		}
	}

	return nil
}

// Tasks returns every task in the tree in execution order (depth first).
func Tasks(node Node) []*Task {
	switch n := node.(type) {
	case *Task:
		return []*Task{n}
	case *Group:
		result := make([]*Task, 0, len(n.Steps))
		for _, step := range n.Steps {
			result = append(result, Tasks(step)...)
		}
		return result
	}
	return nil
}
