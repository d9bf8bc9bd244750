package layer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cscutcher/naruto-aufs-layers/errdefs"
)

// relOp is one parsed relation operator: command is one of '^', '~', '@';
// depth defaults to 1 when absent from the spec string.
type relOp struct {
	command byte
	depth   int
}

// parseSpec splits a layer-spec string of shape "<reference><relops>" into
// its reference (empty, "root", a layer id, or a tag) and its sequence of
// relation operators. The grammar is small and regular enough for a
// handwritten scanner rather than a regexp.
func parseSpec(spec string) (reference string, relops []relOp, err error) {
	i := 0
	for i < len(spec) && !isReserved(spec[i]) {
		i++
	}
	reference = spec[:i]

	for i < len(spec) {
		command := spec[i]
		if !isRelOpStart(command) {
			return "", nil, errdefs.InvalidParameter(fmt.Errorf("unexpected character %q in layer spec %q", command, spec))
		}
		i++

		start := i
		for i < len(spec) && isDigit(spec[i]) {
			i++
		}
		depth := 1
		if i > start {
			depth, err = strconv.Atoi(spec[start:i])
			if err != nil {
				return "", nil, errdefs.InvalidParameter(fmt.Errorf("bad depth in layer spec %q: %w", spec, err))
			}
		}
		if depth < 1 {
			return "", nil, errdefs.InvalidParameter(fmt.Errorf("depth must be >= 1 in layer spec %q", spec))
		}

		relops = append(relops, relOp{command: command, depth: depth})
	}
	return reference, relops, nil
}

func isRelOpStart(c byte) bool { return c == '^' || c == '~' || c == '@' }
func isReserved(c byte) bool   { return isRelOpStart(c) || c == '?' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }

// FindLayer resolves a layer-spec string relative to the receiver: an
// empty reference means "this layer"; "root" means the tree root; anything
// else is matched by pre-order DFS from root against layer id or tag set.
// Relation operators then apply left to right against the resolved layer.
func (l *Layer) FindLayer(ctx context.Context, spec string) (*Layer, error) {
	reference, relops, err := parseSpec(spec)
	if err != nil {
		return nil, err
	}

	root, err := l.Root()
	if err != nil {
		return nil, err
	}

	var current *Layer
	switch reference {
	case "root":
		current = root
	case "":
		current = l
	default:
		current, err = findByReference(root, reference)
		if err != nil {
			return nil, err
		}
	}

	for _, op := range relops {
		current, err = current.resolveRelOp(op)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// findByReference does a pre-order DFS from root looking for a layer whose
// id equals reference, or whose tag set contains it.
func findByReference(root *Layer, reference string) (*Layer, error) {
	descendants, err := root.Descendants()
	if err != nil {
		return nil, err
	}
	candidates := append([]*Layer{root}, descendants...)

	for _, candidate := range candidates {
		if candidate.ID() == reference {
			return candidate, nil
		}
		has, err := candidate.HasTag(reference)
		if err != nil {
			return nil, err
		}
		if has {
			return candidate, nil
		}
	}
	return nil, errdefs.NotFound(fmt.Errorf("unable to find layer %q", reference))
}

// resolveRelOp applies one relation operator to l.
func (l *Layer) resolveRelOp(op relOp) (*Layer, error) {
	switch op.command {
	case '^':
		children, err := l.Children()
		if err != nil {
			return nil, err
		}
		if op.depth > len(children) {
			return nil, errdefs.NotFound(fmt.Errorf("no %d-th child of %s", op.depth, l.ID()))
		}
		return children[op.depth-1], nil
	case '~':
		current := l
		for i := 0; i < op.depth; i++ {
			children, err := current.Children()
			if err != nil {
				return nil, err
			}
			if len(children) == 0 {
				return nil, errdefs.NotFound(fmt.Errorf("no first child of %s", current.ID()))
			}
			current = children[0]
		}
		return current, nil
	case '@':
		current := l
		for i := 0; i < op.depth; i++ {
			parent, err := current.Parent()
			if err != nil {
				return nil, err
			}
			if parent == nil {
				return nil, errdefs.NotFound(fmt.Errorf("cannot ascend past root %s", current.ID()))
			}
			current = parent
		}
		return current, nil
	default:
		return nil, errdefs.InvalidParameter(fmt.Errorf("unknown relation operator %q", op.command))
	}
}
