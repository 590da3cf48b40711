package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// TaskFunc does the actual work of a task. It must read the mode from r when it runs, never
// when it is constructed.
type TaskFunc func(ctx context.Context, r *Run) error

// Node is either a *Task or a *Group.
type Node interface {
	Name() string
	// Claims returns every output claimed by this node and its children.
	Claims() []Claim
}

// Task is a named unit of file transformation.
type Task struct {
	Short   string
	Desc    string
	Outputs []Claim
	Hidden  bool
	Fn      TaskFunc
}

// Group runs its steps one after the other or, if Parallel is set, concurrently.
type Group struct {
	Short    string
	Parallel bool
	Steps    []Node
}

// Claim declares that a task writes files below Dir. An empty Exts list claims every file.
// Non-recursive claims only cover files directly inside Dir.
type Claim struct {
	Dir       string
	Exts      []string
	Recursive bool
}

// NewTask creates a task.
func NewTask(short, desc string, fn TaskFunc, outputs ...Claim) *Task {
	return &Task{
		Short:   short,
		Desc:    desc,
		Outputs: outputs,
		Fn:      fn,
	}
}

// Series composes steps that run in order.
func Series(short string, steps ...Node) *Group {
	return &Group{Short: short, Steps: steps}
}

// Parallel composes steps that run concurrently.
func Parallel(short string, steps ...Node) *Group {
	return &Group{Short: short, Parallel: true, Steps: steps}
}

func (t *Task) Name() string {
	return t.Short
}

func (t *Task) Claims() []Claim {
	return t.Outputs
}

func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

func (g *Group) Name() string {
	return g.Short
}

func (g *Group) Claims() []Claim {
	result := make([]Claim, 0)
	for _, step := range g.Steps {
		result = append(result, step.Claims()...)
	}
	return result
}

func (g *Group) String() string {
	names := make([]string, len(g.Steps))
	for idx, step := range g.Steps {
		names[idx] = step.Name()
	}

	kind := "series"
	if g.Parallel {
		kind = "parallel"
	}
	return fmt.Sprintf("%s(%s)", kind, strings.Join(names, ", "))
}

// Claim helpers

// Files claims the files with the given extensions directly inside dir.
func Files(dir string, exts ...string) Claim {
	return Claim{Dir: dir, Exts: exts}
}

// Tree claims everything below dir.
func Tree(dir string, exts ...string) Claim {
	return Claim{Dir: dir, Exts: exts, Recursive: true}
}

func (c Claim) String() string {
	suffix := "*"
	if c.Recursive {
		suffix = "**/*"
	}
	if len(c.Exts) > 0 {
		suffix += ".{" + strings.Join(c.Exts, ",") + "}"
	}
	return filepath.ToSlash(filepath.Join(c.Dir, suffix))
}

// Overlaps reports whether c and other could ever name the same file.
func (c Claim) Overlaps(other Claim) bool {
	a := filepath.Clean(c.Dir)
	b := filepath.Clean(other.Dir)

	dirsOverlap := a == b
	if !dirsOverlap && c.Recursive && isBelow(b, a) {
		dirsOverlap = true
	}
	if !dirsOverlap && other.Recursive && isBelow(a, b) {
		dirsOverlap = true
	}
	if !dirsOverlap {
		return false
	}

	if len(c.Exts) == 0 || len(other.Exts) == 0 {
		return true
	}

	for _, x := range c.Exts {
		for _, y := range other.Exts {
			if normalizeExt(x) == normalizeExt(y) {
				return true
			}
		}
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// isBelow reports whether path is inside (or equal to) dir.
func isBelow(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
