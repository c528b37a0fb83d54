/*
Copyright © 2022-2025 SUSE LLC
SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tree is the Forest: a persistent, single-rooted tree of snapshot
// ids. It is an arena of ids and a child-to-parent index, not an object
// graph, per the design note that the forest should use arena + index
// rather than pointer-linked nodes.
package tree

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
)

// Root is the single, always-present root id. It is never itself stored in
// the parent index.
const Root paths.ID = 0

// Forest is the in-memory, persistable forest of snapshot ids.
type Forest struct {
	parent   map[paths.ID]paths.ID
	children map[paths.ID][]paths.ID
}

// New returns an empty forest containing only the implicit root.
func New() *Forest {
	return &Forest{
		parent:   map[paths.ID]paths.ID{},
		children: map[paths.ID][]paths.ID{},
	}
}

// Load reads the persisted forest from /.snapshots/ash/fstree. A missing
// file is treated as an empty forest (the state right after a fresh base
// install, before the first `new`).
func Load(s *sys.System) (*Forest, error) {
	f := New()

	ok, err := sys.Exists(s.FS(), paths.FsTree)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.TreeInvariantError, "checking fstree presence")
	}
	if !ok {
		return f, nil
	}

	data, err := s.FS().ReadFile(paths.FsTree)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.TreeInvariantError, "reading fstree")
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errorkind.Wrapf(errorkind.TreeInvariantError, "malformed fstree line %q", line)
		}
		p, err1 := strconv.Atoi(fields[0])
		c, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, errorkind.Wrapf(errorkind.TreeInvariantError, "malformed fstree line %q", line)
		}
		if err := f.addEdge(paths.ID(p), paths.ID(c)); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Save persists the forest as one "parent child" line per non-root node, in
// pre-order from the root (siblings in insertion order), so the on-disk
// layout is stable across writes that don't change the structure.
func (f *Forest) Save(s *sys.System) error {
	var b strings.Builder
	for _, id := range f.idsInInsertionOrder() {
		fmt.Fprintf(&b, "%d %d\n", int(f.parent[id]), int(id))
	}

	if err := s.FS().WriteFile(paths.FsTree, []byte(b.String()), sys.FilePerm); err != nil {
		return errorkind.Wrap(errorkind.TreeInvariantError, "writing fstree")
	}
	return nil
}

func (f *Forest) addEdge(parent, child paths.ID) error {
	if child == Root {
		return errorkind.Wrapf(errorkind.TreeInvariantError, "id 0 cannot have a parent")
	}
	if _, exists := f.parent[child]; exists {
		return errorkind.Wrapf(errorkind.TreeInvariantError, "id %d already present in forest", int(child))
	}
	if parent != Root {
		if _, exists := f.parent[parent]; !exists {
			return errorkind.Wrapf(errorkind.TreeInvariantError, "parent %d of %d not in forest", int(parent), int(child))
		}
	}
	f.parent[child] = parent
	f.children[parent] = append(f.children[parent], child)
	return nil
}

// AppendBase adds i as a direct child of the root.
func (f *Forest) AppendBase(i paths.ID) error {
	return f.addEdge(Root, i)
}

// AddUnderParent adds i as a child of p.
func (f *Forest) AddUnderParent(p, i paths.ID) error {
	return f.addEdge(p, i)
}

// AddToLevel adds i as a child of sibling's parent, i.e. as a sibling of an
// existing node.
func (f *Forest) AddToLevel(sibling, i paths.ID) error {
	p, ok := f.Parent(sibling)
	if !ok {
		return errorkind.Wrapf(errorkind.TreeInvariantError, "sibling %d not in forest", int(sibling))
	}
	return f.addEdge(p, i)
}

// Parent returns n's parent id. ok is false for the root or an id not in
// the forest.
func (f *Forest) Parent(n paths.ID) (paths.ID, bool) {
	if n == Root {
		return Root, false
	}
	p, ok := f.parent[n]
	return p, ok
}

// Has reports whether id is present in the forest (root always is).
func (f *Forest) Has(id paths.ID) bool {
	if id == Root {
		return true
	}
	_, ok := f.parent[id]
	return ok
}

// Children returns every transitive descendant of n, in pre-order.
func (f *Forest) Children(n paths.ID) []paths.ID {
	var out []paths.ID
	var walk func(paths.ID)
	walk = func(cur paths.ID) {
		for _, c := range f.children[cur] {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// Pair is a (parent, child) edge, as recurse_tree hands it to tree-sync.
type Pair struct {
	Parent paths.ID
	Child  paths.ID
}

// Recurse returns the flattened, pre-order sequence of (parent, child)
// pairs rooted at n, used by TreeSync to visit edges top-down.
func (f *Forest) Recurse(n paths.ID) []Pair {
	var out []Pair
	var walk func(paths.ID)
	walk = func(cur paths.ID) {
		for _, c := range f.children[cur] {
			out = append(out, Pair{Parent: cur, Child: c})
			walk(c)
		}
	}
	walk(n)
	return out
}

// Remove deletes n from the forest. Callers are responsible for having
// already removed every descendant (typically via Children) before calling
// Remove on the ancestor, since a dangling child reference would otherwise
// violate the single-parent invariant on reload.
func (f *Forest) Remove(n paths.ID) {
	if n == Root {
		return
	}
	p, ok := f.parent[n]
	if !ok {
		return
	}
	delete(f.parent, n)
	delete(f.children, n)
	siblings := f.children[p]
	for i, c := range siblings {
		if c == n {
			f.children[p] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

// IDs returns every id in the forest, including the root, sorted ascending.
func (f *Forest) IDs() []paths.ID {
	ids := []paths.ID{Root}
	for id := range f.parent {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// idsInInsertionOrder returns non-root ids in a deterministic pre-order
// starting from the root, used only for a stable Save layout.
func (f *Forest) idsInInsertionOrder() []paths.ID {
	var out []paths.ID
	var walk func(paths.ID)
	walk = func(cur paths.ID) {
		for _, c := range f.children[cur] {
			out = append(out, c)
			walk(c)
		}
	}
	walk(Root)
	return out
}
