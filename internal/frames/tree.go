// Package frames moves poses between coordinate frames. Tree is the
// in-process transform source; Adapter re-expresses stamped poses in a
// target frame with a bounded wait.
package frames

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/waypoints/internal/geom"
)

// ErrNoChain reports that no chain of edges currently links two frames.
var ErrNoChain = errors.New("no transform chain")

// TransformLookup resolves the transform that maps coordinates in source
// into target, waiting until it is available or ctx ends.
type TransformLookup interface {
	LookupTransform(ctx context.Context, target, source string) (geom.Transform, error)
}

type edge struct {
	parent string
	tf     geom.Transform
	static bool
	stamp  time.Time
}

// Tree is a frame tree. Each child frame has at most one parent; the edge
// transform maps child coordinates into the parent. Lookups walk the tree in
// both directions, inverting edges as needed.
type Tree struct {
	mu      sync.RWMutex
	edges   map[string]edge // keyed by child
	changed chan struct{}
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		edges:   make(map[string]edge),
		changed: make(chan struct{}),
	}
}

// AddStatic installs a fixed parent->child edge. Static edges cannot be
// replaced by SetTransform.
func (t *Tree) AddStatic(parent, child string, tf geom.Transform) error {
	return t.set(parent, child, tf, true, time.Time{})
}

// SetTransform installs or replaces a dynamic parent->child edge.
func (t *Tree) SetTransform(parent, child string, tf geom.Transform, stamp time.Time) error {
	return t.set(parent, child, tf, false, stamp)
}

func (t *Tree) set(parent, child string, tf geom.Transform, static bool, stamp time.Time) error {
	if parent == "" || child == "" {
		return fmt.Errorf("frame names must be non-empty")
	}
	if parent == child {
		return fmt.Errorf("frame %q cannot be its own parent", child)
	}
	if err := tf.Validate(); err != nil {
		return fmt.Errorf("%s->%s: %w", parent, child, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.edges[child]; ok && old.static && !static {
		return fmt.Errorf("%s->%s: frame %q has a static parent %q", parent, child, child, old.parent)
	}
	t.edges[child] = edge{parent: parent, tf: tf, static: static, stamp: stamp}

	close(t.changed)
	t.changed = make(chan struct{})
	return nil
}

// Frames lists every frame known to the tree, sorted.
func (t *Tree) Frames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]struct{})
	for child, e := range t.edges {
		seen[child] = struct{}{}
		seen[e.parent] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the transform mapping source coordinates into target if a
// chain currently exists.
func (t *Tree) Lookup(target, source string) (geom.Transform, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookupLocked(target, source)
}

// LookupTransform blocks until Lookup succeeds or ctx ends. The tree wakes
// waiters on every edge update.
func (t *Tree) LookupTransform(ctx context.Context, target, source string) (geom.Transform, error) {
	for {
		t.mu.RLock()
		tf, err := t.lookupLocked(target, source)
		changed := t.changed
		t.mu.RUnlock()
		if err == nil {
			return tf, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return geom.Transform{}, fmt.Errorf("%w: %v", err, ctx.Err())
		}
	}
}

// lookupLocked does a breadth-first walk from source to target. A step from a
// child up to its parent applies the edge; a step down applies its inverse.
func (t *Tree) lookupLocked(target, source string) (geom.Transform, error) {
	if target == source {
		return geom.IdentityTransform, nil
	}

	children := make(map[string][]string)
	for child, e := range t.edges {
		children[e.parent] = append(children[e.parent], child)
	}

	acc := map[string]geom.Transform{source: geom.IdentityTransform}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curTf := acc[cur]

		if e, ok := t.edges[cur]; ok {
			if _, seen := acc[e.parent]; !seen {
				acc[e.parent] = e.tf.Compose(curTf)
				queue = append(queue, e.parent)
			}
		}
		for _, child := range children[cur] {
			if _, seen := acc[child]; seen {
				continue
			}
			acc[child] = t.edges[child].tf.Inverse().Compose(curTf)
			queue = append(queue, child)
		}

		if tf, ok := acc[target]; ok {
			return tf, nil
		}
	}
	return geom.Transform{}, fmt.Errorf("%w from %q to %q", ErrNoChain, source, target)
}
