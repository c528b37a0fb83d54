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

// Package lifecycle holds the snapshot lifecycle operations: creating
// snapshots from the base or from existing ones, deleting sub-forests,
// toggling mutability, hollowing, and unlocking abandoned staging triples.
// Every operation that touches the forest persists it before returning.
package lifecycle

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ochibani/ash/pkg/deploy"
	"github.com/ochibani/ash/pkg/descstore"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/subvol"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
	"github.com/ochibani/ash/pkg/tree"
	"github.com/ochibani/ash/pkg/views"
)

// Manager runs lifecycle operations over a forest.
type Manager struct {
	s       *sys.System
	subvol  *subvol.Ops
	desc    *descstore.Store
	staging *staging.Protocol
	deploy  *deploy.Deployer
	views   *views.Views
}

// New returns a Manager bound to s.
func New(s *sys.System) *Manager {
	return &Manager{
		s:       s,
		subvol:  subvol.New(s),
		desc:    descstore.New(s),
		staging: staging.New(s),
		deploy:  deploy.New(s),
		views:   views.New(s),
	}
}

// FindNew returns the smallest positive id not currently used by any of
// the three parallel subvolume namespaces. Staging ("chr") suffixes count
// as usage of the id they stage; the fixed deploy slots are not ids and
// are skipped.
func (m *Manager) FindNew() (paths.ID, error) {
	used := map[int]bool{}

	for dir, prefix := range map[string]string{
		paths.Root + "/rootfs": "snapshot-",
		paths.Root + "/boot":   "boot-",
		paths.Root + "/etc":    "etc-",
	} {
		ok, err := vfs.Exists(m.s.FS(), dir)
		if err != nil {
			return 0, errorkind.Wrapf(errorkind.SubvolError, "checking %s", dir)
		}
		if !ok {
			continue
		}
		entries, err := m.s.FS().ReadDir(dir)
		if err != nil {
			return 0, errorkind.Wrapf(errorkind.SubvolError, "reading %s", dir)
		}
		for _, e := range entries {
			name := strings.TrimPrefix(e.Name(), prefix)
			name = strings.TrimPrefix(name, "chr")
			if n, err := strconv.Atoi(name); err == nil && n > 0 {
				used[n] = true
			}
		}
	}

	i := 1
	for used[i] {
		i++
	}
	return paths.ID(i), nil
}

// NewSnapshot performs new(desc): snapshots the base triple read-only into
// a fresh id, appends it to the forest root and records desc.
func (m *Manager) NewSnapshot(f *tree.Forest, desc string) (paths.ID, error) {
	i, err := m.FindNew()
	if err != nil {
		return 0, err
	}
	if err := m.snapTriple(tree.Root, i, false); err != nil {
		return 0, err
	}
	if err := f.AppendBase(i); err != nil {
		return 0, err
	}
	if err := f.Save(m.s); err != nil {
		return 0, err
	}
	return i, m.desc.Write(i, desc)
}

// CloneAsTree performs clone_as_tree(N, desc): snapshots N with its
// current mutability into a fresh id added under the forest root.
func (m *Manager) CloneAsTree(f *tree.Forest, n paths.ID, desc string) (paths.ID, error) {
	i, mutable, err := m.cloneTriple(n)
	if err != nil {
		return 0, err
	}
	if err := f.AppendBase(i); err != nil {
		return 0, err
	}
	if err := f.Save(m.s); err != nil {
		return 0, err
	}
	if err := m.desc.Write(i, desc); err != nil {
		return 0, err
	}
	if mutable {
		return i, m.desc.MarkMutable(i)
	}
	return i, nil
}

// CloneBranch performs clone_branch(N): snapshots N into a fresh id added
// as a sibling of N.
func (m *Manager) CloneBranch(f *tree.Forest, n paths.ID) (paths.ID, error) {
	i, mutable, err := m.cloneTriple(n)
	if err != nil {
		return 0, err
	}
	if err := f.AddToLevel(n, i); err != nil {
		return 0, err
	}
	if err := f.Save(m.s); err != nil {
		return 0, err
	}
	if err := m.desc.Write(i, "clone of "+n.Slot()); err != nil {
		return 0, err
	}
	if mutable {
		return i, m.desc.MarkMutable(i)
	}
	return i, nil
}

// CloneUnder performs clone_under(N, B): snapshots B (with B's mutability)
// into a fresh id added as a child of N.
func (m *Manager) CloneUnder(f *tree.Forest, parent, base paths.ID) (paths.ID, error) {
	i, mutable, err := m.cloneTriple(base)
	if err != nil {
		return 0, err
	}
	if err := f.AddUnderParent(parent, i); err != nil {
		return 0, err
	}
	if err := f.Save(m.s); err != nil {
		return 0, err
	}
	if err := m.desc.Write(i, "clone of "+base.Slot()); err != nil {
		return 0, err
	}
	if mutable {
		return i, m.desc.MarkMutable(i)
	}
	return i, nil
}

// CloneRecursive performs clone_recursive(N): clones the whole sub-forest
// rooted at N, re-establishing parent links between the copies via an
// old-to-new id map. Returns the clone of N itself.
func (m *Manager) CloneRecursive(f *tree.Forest, n paths.ID) (paths.ID, error) {
	top, err := m.CloneBranch(f, n)
	if err != nil {
		return 0, err
	}

	// Recurse is materialized up front, so the copies added below never
	// show up in the walk. Pre-order guarantees a pair's parent was
	// mapped before any of its children come up.
	idMap := map[paths.ID]paths.ID{n: top}
	for _, pair := range f.Recurse(n) {
		newParent, ok := idMap[pair.Parent]
		if !ok {
			return 0, errorkind.Wrapf(errorkind.TreeInvariantError, "no clone recorded for parent %d", int(pair.Parent))
		}
		i, err := m.CloneUnder(f, newParent, pair.Child)
		if err != nil {
			return 0, err
		}
		idMap[pair.Child] = i
	}
	return top, nil
}

// DeleteNode performs delete_node(ids, quiet): deletes each allowed id and
// its whole sub-forest. confirm is consulted per id unless quiet; a false
// answer skips that id without error. Id 0 and the currently booted and
// next-boot snapshots are refused.
func (m *Manager) DeleteNode(f *tree.Forest, ids []paths.ID, quiet bool, confirm func(paths.ID) bool) error {
	current, next := m.deployedIDs()

	for _, id := range ids {
		if id == tree.Root {
			return errorkind.Wrap(errorkind.BaseImmutable, "cannot delete the base snapshot")
		}
		if id == current || id == next {
			return errorkind.Wrapf(errorkind.DeployedProtected, "snapshot %d is the current or next-boot deployment", int(id))
		}
		if !f.Has(id) {
			return errorkind.Wrapf(errorkind.SnapshotMissing, "snapshot %d not in forest", int(id))
		}
		if !quiet && confirm != nil && !confirm(id) {
			continue
		}

		victims := append([]paths.ID{id}, f.Children(id)...)
		for _, v := range victims {
			if err := m.desc.Clear(v); err != nil {
				return err
			}
			if err := m.deleteTriple(paths.ForID(v)); err != nil {
				return err
			}
			if err := m.deleteTriple(paths.ForStaging(v)); err != nil {
				return err
			}
		}
		// Children first so no dangling parent reference survives a
		// crash between Remove and Save.
		for i := len(victims) - 1; i >= 0; i-- {
			f.Remove(victims[i])
		}
		if err := f.Save(m.s); err != nil {
			return err
		}
	}
	return nil
}

// deployedIDs reports the snapshot ids materialized in the current and
// next-boot deploy slots. Outside a deployed system (no slot mounted at /)
// both are -1, protecting nothing.
func (m *Manager) deployedIDs() (current, next paths.ID) {
	current, next = -1, -1
	if id, err := m.views.Current(); err == nil {
		current = id
	}
	if id, err := m.views.Tmp(); err == nil {
		next = id
	}
	return current, next
}

// ImmutabilityDisable makes snapshot id mutable: writes the marker file,
// flips the rootfs subvolume read-write and amends the description.
func (m *Manager) ImmutabilityDisable(id paths.ID) error {
	rootfs, err := m.checkImmutabilityTarget(id)
	if err != nil {
		return err
	}
	if err := m.subvol.SetReadOnly(rootfs, false); err != nil {
		return err
	}
	marker := paths.Mutable(rootfs)
	if err := vfs.MkdirAll(m.s.FS(), filepath.Dir(marker), vfs.DirPerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "creating marker directory for %d", int(id))
	}
	if err := m.s.FS().WriteFile(marker, []byte{}, sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "writing mutability marker for %d", int(id))
	}
	return m.desc.MarkMutable(id)
}

// ImmutabilityEnable makes snapshot id immutable again: removes the marker
// file, flips the rootfs subvolume read-only and amends the description.
func (m *Manager) ImmutabilityEnable(id paths.ID) error {
	rootfs, err := m.checkImmutabilityTarget(id)
	if err != nil {
		return err
	}
	if err := m.s.FS().RemoveAll(paths.Mutable(rootfs)); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "removing mutability marker for %d", int(id))
	}
	if err := m.subvol.SetReadOnly(rootfs, true); err != nil {
		return err
	}
	return m.desc.MarkImmutable(id)
}

// IsMutable reports whether snapshot id carries the mutability marker.
func (m *Manager) IsMutable(id paths.ID) (bool, error) {
	return vfs.Exists(m.s.FS(), paths.Mutable(paths.ForID(id).Rootfs))
}

func (m *Manager) checkImmutabilityTarget(id paths.ID) (string, error) {
	if id == tree.Root {
		return "", errorkind.Wrap(errorkind.BaseImmutable, "base snapshot mutability cannot change")
	}
	rootfs := paths.ForID(id).Rootfs
	ok, err := m.subvol.Exists(rootfs)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errorkind.Wrapf(errorkind.SnapshotMissing, "snapshot %d", int(id))
	}
	return rootfs, nil
}

// Unlock force-deletes id's staging triple, reclaiming the advisory lock
// after an interrupted mutation. No safety checks: the operator asserts no
// operation is in progress by running it.
func (m *Manager) Unlock(id paths.ID) error {
	return m.staging.ChrDelete(id)
}

// Hollow performs hollow(N): stages N, rbind-mounts the running root onto
// the staging chroot so deep system state is visible through it, hands
// control to confirm (typically an operator prompt plus whatever work they
// do), then commits, re-enables immutability and deploys N. A false
// confirm aborts, discarding the staging copy.
func (m *Manager) Hollow(id paths.ID, confirm func(stagingRoot string) bool) (err error) {
	stagingRoot, err := m.staging.Prepare(id)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = m.staging.ChrDelete(id)
		}
	}()

	if err = m.s.Mounter().Mount("/", stagingRoot, "", []string{"rbind"}); err != nil {
		return errorkind.Wrapf(errorkind.MountError, "rbind-mounting / onto staging for snapshot %d", int(id))
	}
	defer func() {
		if uerr := m.s.Mounter().UnmountLazy(stagingRoot); uerr != nil && err == nil {
			err = errorkind.Wrapf(errorkind.MountError, "detaching hollow rbind for snapshot %d", int(id))
		}
	}()

	if confirm != nil && !confirm(stagingRoot) {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "hollow of snapshot %d declined", int(id))
	}

	if err = m.staging.PostTransactions(id); err != nil {
		return err
	}
	if err = m.ImmutabilityEnable(id); err != nil {
		return err
	}
	return m.deploy.Deploy(id)
}

// cloneTriple snapshots n's triple into a fresh id, carrying n's
// mutability, and reports the new id and whether it is mutable.
func (m *Manager) cloneTriple(n paths.ID) (paths.ID, bool, error) {
	src := paths.ForID(n)

	ok, err := m.subvol.Exists(src.Rootfs)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, errorkind.Wrapf(errorkind.SnapshotMissing, "snapshot %d", int(n))
	}
	if locked, err := m.subvol.Exists(paths.ForStaging(n).Rootfs); err != nil {
		return 0, false, err
	} else if locked {
		return 0, false, errorkind.Wrapf(errorkind.SnapshotLocked, "snapshot %d is locked, run 'unlock %d' if no operation is in progress", int(n), int(n))
	}

	mutable, err := vfs.Exists(m.s.FS(), paths.Mutable(src.Rootfs))
	if err != nil {
		return 0, false, err
	}

	i, err := m.FindNew()
	if err != nil {
		return 0, false, err
	}
	return i, mutable, m.snapTriple(n, i, mutable)
}

func (m *Manager) snapTriple(src, dst paths.ID, mutable bool) error {
	from := paths.ForID(src)
	to := paths.ForID(dst)
	for s, d := range map[string]string{
		from.Rootfs: to.Rootfs,
		from.Boot:   to.Boot,
		from.Etc:    to.Etc,
	} {
		var err error
		if mutable {
			err = m.subvol.SnapRW(s, d)
		} else {
			err = m.subvol.SnapRO(s, d)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) deleteTriple(t paths.Triple) error {
	for _, path := range []string{t.Rootfs, t.Boot, t.Etc} {
		if err := m.subvol.Delete(path); err != nil {
			return err
		}
	}
	return nil
}
