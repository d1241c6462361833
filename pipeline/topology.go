package pipeline

import (
	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
)

// Node is one entity in a reader tree: the reader itself, a writer, or a
// seam with its own children. A tree of Nodes is enough to build fresh
// instances of the same pipeline.
type Node struct {
	Role     Role         `json:"role" yaml:"role"`
	Endpoint EndpointSpec `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Seam     SeamSpec     `json:"seam,omitempty" yaml:"seam,omitempty"`
	Children []Node       `json:"children,omitempty" yaml:"children,omitempty"`
}

// Count returns the number of writers and seams below n.
func (n Node) Count() (writers, seams int) {
	for _, c := range n.Children {
		switch c.Role {
		case RoleWriter:
			writers++
		case RoleSeam:
			seams++
			w, s := c.Count()
			writers += w
			seams += s
		}
	}
	return writers, seams
}

// Build creates an Idle reader from a RoleReader node.
func Build(root Node, registry *Registry, deps component.Dependencies) (*Reader, error) {
	if root.Role != RoleReader {
		return nil, errors.Configf("pipeline", "tree root must be a reader, got %q", root.Role)
	}
	r, err := NewReader(root.Endpoint, registry, deps)
	if err != nil {
		return nil, err
	}
	if err := attachChildren(&r.fanout, root.Children); err != nil {
		return nil, err
	}
	return r, nil
}

func attachChildren(f *fanout, children []Node) error {
	for _, child := range children {
		switch child.Role {
		case RoleWriter:
			if _, err := f.AddWriter(child.Endpoint); err != nil {
				return err
			}
		case RoleSeam:
			s, err := f.AddSeam(child.Seam)
			if err != nil {
				return err
			}
			if err := attachChildren(&s.fanout, child.Children); err != nil {
				return err
			}
		default:
			return errors.Configf("pipeline", "node under %s must be a writer or seam, got %q", f.owner, child.Role)
		}
	}
	return nil
}
