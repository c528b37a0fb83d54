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

// Package views is the set of read-only queries over forest and subvolume
// state: snapshot_diff, list_subvolumes, show_fstree and whichsnap. None of
// them go through the staging protocol.
package views

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ochibani/ash/pkg/deploy"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/pkgdb"
	"github.com/ochibani/ash/pkg/subvol"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/tree"
)

const rootfsRoot = paths.Root + "/rootfs"

// Views answers read-only questions about forest and subvolume state.
type Views struct {
	s      *sys.System
	subvol *subvol.Ops
	deploy *deploy.Deployer
}

// New returns a Views bound to s.
func New(s *sys.System) *Views {
	return &Views{s: s, subvol: subvol.New(s), deploy: deploy.New(s)}
}

// SnapshotDiff performs snapshot_diff(a, b): the set-diff of a's and b's
// installed package names. added holds names present in b but not a;
// removed holds names present in a but not b.
func (v *Views) SnapshotDiff(a, b paths.ID) (added, removed []string, err error) {
	pa, err := pkgdb.Names(v.s, paths.ForID(a).Rootfs)
	if err != nil {
		return nil, nil, err
	}
	pb, err := pkgdb.Names(v.s, paths.ForID(b).Rootfs)
	if err != nil {
		return nil, nil, err
	}

	setA := toSet(pa)
	setB := toSet(pb)

	for name := range setB {
		if !setA[name] {
			added = append(added, name)
		}
	}
	for name := range setA {
		if !setB[name] {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// ListSubvolumes performs list_subvolumes: the sorted list of rootfs
// subvolumes matching the current distro suffix (e.g. "snapshot-" or a
// distro-specific marker baked into subvolume names).
func (v *Views) ListSubvolumes(suffix string) ([]string, error) {
	names, err := v.subvol.List(rootfsRoot, suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ShowFsTree performs show_fstree: a pretty-printed, indented rendering of
// the forest rooted at 0.
func ShowFsTree(f *tree.Forest) string {
	var b strings.Builder
	var walk func(id paths.ID, depth int)
	walk = func(id paths.ID, depth int) {
		fmt.Fprintf(&b, "%s%d\n", strings.Repeat("  ", depth), int(id))
		children := directChildren(f, id)
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	walk(tree.Root, 0)
	return b.String()
}

// directChildren returns only id's direct children, filtering Recurse's
// full pre-order edge list down to the first level.
func directChildren(f *tree.Forest, id paths.ID) []paths.ID {
	var out []paths.ID
	for _, pair := range f.Recurse(id) {
		if pair.Parent == id {
			out = append(out, pair.Child)
		}
	}
	return out
}

// WhichSnap performs whichsnap(pkg): every snapshot id in f whose package
// database contains pkg.
func (v *Views) WhichSnap(f *tree.Forest, pkgName string) ([]paths.ID, error) {
	var matches []paths.ID
	for _, id := range f.IDs() {
		entries, err := pkgdb.Entries(v.s, paths.ForID(id).Rootfs)
		if err != nil {
			return nil, err
		}
		if _, ok := entries[pkgName]; ok {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// Current reports the user-snapshot id materialized in the currently
// booted deploy slot, read from the slot's snap pointer file.
func (v *Views) Current() (paths.ID, error) {
	slot, err := v.deploy.CurrentSlot()
	if err != nil {
		return 0, err
	}
	return v.snapPointer(paths.ForSlot(slot).Rootfs)
}

// Tmp reports the user-snapshot id materialized in the other (next-boot)
// deploy slot.
func (v *Views) Tmp() (paths.ID, error) {
	slot, err := v.deploy.CurrentSlot()
	if err != nil {
		return 0, err
	}
	return v.snapPointer(paths.ForSlot(paths.OtherSlot(slot)).Rootfs)
}

// WhichTmp reports the name of the next-boot deploy slot.
func (v *Views) WhichTmp() (string, error) {
	slot, err := v.deploy.CurrentSlot()
	if err != nil {
		return "", err
	}
	return paths.OtherSlot(slot), nil
}

func (v *Views) snapPointer(rootfs string) (paths.ID, error) {
	data, err := v.s.FS().ReadFile(paths.Snap(rootfs))
	if err != nil {
		return 0, errorkind.Wrapf(errorkind.SnapshotMissing, "reading snap pointer under %s", rootfs)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errorkind.Wrapf(errorkind.ConfigParseError, "malformed snap pointer under %s", rootfs)
	}
	return paths.ID(n), nil
}
