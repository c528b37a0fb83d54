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

// Package treesync is TreeSync: recursive propagation of package-manager
// state from a parent snapshot to every descendant, preserving packages
// the descendant has locally added.
package treesync

import (
	"path/filepath"

	"github.com/ochibani/ash/pkg/deploy"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/pkgdb"
	"github.com/ochibani/ash/pkg/reflink"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/subvol"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
	"github.com/ochibani/ash/pkg/tree"
	"github.com/ochibani/ash/pkg/views"
)

// Syncer runs sync_tree over a forest.
type Syncer struct {
	s       *sys.System
	forest  *tree.Forest
	staging *staging.Protocol
	subvol  *subvol.Ops
	copier  *reflink.Copier
	deploy  *deploy.Deployer
}

// New returns a Syncer bound to s, operating over f.
func New(s *sys.System, f *tree.Forest) *Syncer {
	return &Syncer{
		s:       s,
		forest:  f,
		staging: staging.New(s),
		subvol:  subvol.New(s),
		copier:  reflink.New(s),
		deploy:  deploy.New(s),
	}
}

// SyncTree performs sync_tree(root, force_offline, live). Unless
// forceOffline, updateTree (the external package-manager refresh
// collaborator) runs first. The forest is then walked as successive
// (parent, child) pairs from root; each child is staged, synced from its
// parent, and committed. If live and a child is the currently booted
// snapshot, the sync additionally runs a second, unstaged pass directly
// against the running deploy slot.
func (sy *Syncer) SyncTree(root paths.ID, forceOffline, live bool, updateTree func() error) error {
	if !forceOffline && updateTree != nil {
		if err := updateTree(); err != nil {
			return err
		}
	}

	for _, pair := range sy.forest.Recurse(root) {
		locked, err := sy.subvol.Exists(paths.ForStaging(pair.Child).Rootfs)
		if err != nil {
			return err
		}
		if locked {
			return errorkind.Wrapf(errorkind.SnapshotLocked,
				"snapshot %d is locked, run 'unlock %d' if no operation is in progress", int(pair.Child), int(pair.Child))
		}

		stagingRoot, err := sy.staging.Prepare(pair.Child)
		if err != nil {
			return err
		}

		if err := sy.SyncTreeHelper(pair.Parent, stagingRoot); err != nil {
			_ = sy.staging.ChrDelete(pair.Child)
			return err
		}

		if err := sy.staging.PostTransactions(pair.Child); err != nil {
			return err
		}

		if live {
			if err := sy.syncLive(pair); err != nil {
				return err
			}
		}
	}

	return nil
}

func (sy *Syncer) syncLive(pair tree.Pair) error {
	v := views.New(sy.s)
	booted, err := v.Current()
	if err != nil {
		// No deploy slot mounted (e.g. running outside a deployed
		// system, as in tests): nothing live to sync.
		return nil
	}
	if booted != pair.Child {
		return nil
	}

	current, err := sy.deploy.CurrentSlot()
	if err != nil {
		return err
	}
	return sy.SyncTreeHelper(pair.Parent, paths.ForSlot(current).Rootfs)
}

// SyncTreeHelper performs sync_tree_helper(chr_suffix, src, dst): it
// copies package-manager state from src into dstRootfs while preserving
// packages already present in dst but absent from src. dstRootfs is
// either a staging ("-chr") rootfs mid-mutation or, for the live post-sync
// pass, the currently mounted deploy slot's rootfs directly.
func (sy *Syncer) SyncTreeHelper(src paths.ID, dstRootfs string) error {
	srcRootfs := paths.ForID(src).Rootfs

	dstEntries, err := pkgdb.Entries(sy.s, dstRootfs)
	if err != nil {
		return err
	}
	srcEntries, err := pkgdb.Entries(sy.s, srcRootfs)
	if err != nil {
		return err
	}

	var newNames []string
	for name := range srcEntries {
		if _, ok := dstEntries[name]; !ok {
			newNames = append(newNames, name)
		}
	}

	scratch, err := sy.backupDB(dstRootfs)
	if err != nil {
		return err
	}
	defer func() { _ = sy.s.FS().RemoveAll(scratch) }()

	if err := sy.copier.CopyNoClobber(srcRootfs, dstRootfs); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "propagating parent rootfs into descendant")
	}

	if err := pkgdb.Clear(sy.s, dstRootfs); err != nil {
		return err
	}
	if err := sy.copier.Copy(scratch, filepath.Join(dstRootfs, pkgdb.Dir)); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "restoring descendant package database")
	}

	for _, name := range newNames {
		if err := pkgdb.CopyEntry(sy.s, sy.copier, srcRootfs, dstRootfs, srcEntries[name]); err != nil {
			return err
		}
	}

	return nil
}

// backupDB snapshots dstRootfs' package database into a scratch directory
// so it can be restored after the bulk rootfs overlay clobbers it.
func (sy *Syncer) backupDB(dstRootfs string) (string, error) {
	dbDir := filepath.Join(dstRootfs, pkgdb.Dir)
	scratch := filepath.Join(paths.Scratch, "treesync-db-backup")

	if err := sy.s.FS().RemoveAll(scratch); err != nil {
		return "", errorkind.Wrap(errorkind.SubvolError, "clearing previous package database backup")
	}
	if err := vfs.MkdirAll(sy.s.FS(), scratch, vfs.DirPerm); err != nil {
		return "", errorkind.Wrap(errorkind.SubvolError, "creating package database backup directory")
	}

	if ok, _ := vfs.Exists(sy.s.FS(), dbDir); ok {
		if err := sy.copier.Copy(dbDir, scratch); err != nil {
			return "", errorkind.Wrap(errorkind.ProtocolAborted, "backing up descendant package database")
		}
	}

	return scratch, nil
}
