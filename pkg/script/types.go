package script

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/tasks"
)

// Host receives the entry points declared by a script and resolves references to built-in tasks.
type Host interface {
	Lookup(name string) (pipeline.Node, bool)
	AddEntrypoint(ep *tasks.Entrypoint) error
}

// ScriptOption is a value declared with option(). Values are passed on the command line.
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// Node wraps a pipeline node so scripts can pass it around.
type Node struct {
	node pipeline.Node
}

// Implement starlark.Value for *Node

// String returns a string representation of the node
func (n *Node) String() string {
	return fmt.Sprint(n.node)
}

// Type returns the type name
func (n *Node) Type() string {
	if _, ok := n.node.(*pipeline.Group); ok {
		return "group"
	}
	return "task"
}

// Freeze does nothing since nodes are immutable once created
func (n *Node) Freeze() {}

// Truth returns true because nodes are always valid
func (n *Node) Truth() starlark.Bool {
	return starlark.True
}

// Hash is not implemented
func (n *Node) Hash() (uint32, error) {
	return 0, eris.New("nodes are not hashable")
}
