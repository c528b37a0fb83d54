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

// Package staging is the StagingProtocol: the three-phase commit
// (prepare/post_transactions/chr_delete) every mutation of a snapshot goes
// through.
package staging

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ochibani/ash/pkg/chroot"
	"github.com/ochibani/ash/pkg/cleanstack"
	"github.com/ochibani/ash/pkg/configstore"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/reflink"
	"github.com/ochibani/ash/pkg/subvol"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

// pacmanCache is the package manager cache path preserved across a
// prepare/post_transactions cycle, relative to a rootfs subvolume.
const pacmanCache = "var/cache/pacman/pkg"

const initCleanupScript = "/usr/lib/ash/init-cleanup"

// Protocol runs the staging lifecycle for snapshots, tracking the active
// mount orchestrator for every snapshot currently under mutation so
// post_transactions and chr_delete can tear it back down.
type Protocol struct {
	s      *sys.System
	subvol *subvol.Ops
	copier *reflink.Copier
	active map[paths.ID]*session
}

type session struct {
	token   string
	mount   *chroot.Chroot
	staging paths.Triple
	triple  paths.Triple
}

// New returns a Protocol bound to s.
func New(s *sys.System) *Protocol {
	return &Protocol{
		s:      s,
		subvol: subvol.New(s),
		copier: reflink.New(s),
		active: map[paths.ID]*session{},
	}
}

// Prepare performs prepare(N): it stages a writable working copy of N's
// triple and chroots it ready for the caller's mutation, returning the
// staging rootfs path the caller should chroot into. A lock token is
// minted (but not itself persisted beyond this process's memory) so two
// concurrent Protocol instances racing the same id can be told apart in
// logs.
func (p *Protocol) Prepare(id paths.ID) (stagingRoot string, err error) {
	if id == 0 {
		return "", errorkind.Wrap(errorkind.BaseImmutable, "base snapshot 0 cannot be staged")
	}

	triple := paths.ForID(id)
	stagingTriple := paths.ForStaging(id)

	ok, err := p.subvol.Exists(triple.Rootfs)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errorkind.Wrapf(errorkind.SnapshotMissing, "snapshot %d", int(id))
	}

	locked, err := p.subvol.Exists(stagingTriple.Rootfs)
	if err != nil {
		return "", err
	}
	if locked {
		return "", errorkind.Wrapf(errorkind.SnapshotLocked, "snapshot %d is locked, run 'unlock %d' if no operation is in progress", int(id), int(id))
	}

	if err := p.ChrDelete(id); err != nil {
		return "", err
	}

	cs := cleanstack.NewCleanStack()
	defer func() {
		if cerr := cs.Cleanup(err); cerr != nil {
			err = cerr
		}
	}()

	for src, dst := range map[string]string{
		triple.Rootfs: stagingTriple.Rootfs,
		triple.Boot:   stagingTriple.Boot,
		triple.Etc:    stagingTriple.Etc,
	} {
		if err = p.subvol.SnapRW(src, dst); err != nil {
			return "", err
		}
	}
	cs.PushErrorOnly(func() error { return p.ChrDelete(id) })

	cfg, err := configstore.Load(p.s, paths.Config(stagingTriple.Etc))
	if err != nil {
		return "", err
	}

	binds := mutableDirBinds(id, cfg)
	for src, dst := range binds {
		if err = vfs.MkdirAll(p.s.FS(), src, vfs.DirPerm); err != nil {
			return "", errorkind.Wrapf(errorkind.MountError, "creating mutable dir source %s", src)
		}
		if err = vfs.MkdirAll(p.s.FS(), filepath.Join(stagingTriple.Rootfs, dst), vfs.DirPerm); err != nil {
			return "", errorkind.Wrapf(errorkind.MountError, "creating mutable dir target %s", dst)
		}
	}

	mo := chroot.NewChroot(p.s, stagingTriple.Rootfs)
	mo.SetExtraMounts(binds)

	if err = mo.Prepare(); err != nil {
		return "", errorkind.Wrapf(errorkind.MountError, "mounting staging chroot for snapshot %d", int(id))
	}
	cs.PushErrorOnly(func() error { return mo.Close() })

	if err = p.overlayBootEtc(stagingTriple); err != nil {
		return "", err
	}

	// Best-effort: an absent cleanup script is not an error, any other
	// failure to run it is.
	if ok, _ := vfs.Exists(p.s.FS(), initCleanupScript); ok {
		if _, err = mo.Run(initCleanupScript); err != nil {
			return "", errorkind.Wrapf(errorkind.ProtocolAborted, "init-system cleanup for snapshot %d", int(id))
		}
	}

	if err = p.copyAncillaryState(stagingTriple.Rootfs); err != nil {
		return "", err
	}

	p.active[id] = &session{
		token:   uuid.NewString(),
		mount:   mo,
		staging: stagingTriple,
		triple:  triple,
	}

	return stagingTriple.Rootfs, nil
}

func mutableDirBinds(id paths.ID, cfg *configstore.Config) map[string]string {
	binds := map[string]string{}
	for _, d := range cfg.MutableDirs {
		binds[paths.MutableDirSource(id, d.Source)] = d.Target
	}
	for _, d := range cfg.MutableDirsShared {
		binds[paths.SharedMutableDirSource(d.Source)] = d.Target
	}
	return binds
}

func (p *Protocol) overlayBootEtc(staging paths.Triple) error {
	if err := p.copier.Copy(staging.Boot, filepath.Join(staging.Rootfs, "boot")); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "overlaying boot into staging")
	}
	if err := p.copier.Copy(staging.Etc, filepath.Join(staging.Rootfs, "etc")); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "overlaying etc into staging")
	}
	return nil
}

func (p *Protocol) copyAncillaryState(stagingRootfs string) error {
	fs := p.s.FS()

	if ok, err := vfs.Exists(fs, paths.FsTree); err == nil && ok {
		data, err := fs.ReadFile(paths.FsTree)
		if err != nil {
			return errorkind.Wrap(errorkind.TreeInvariantError, "reading fstree for staging copy")
		}
		dst := filepath.Join(stagingRootfs, paths.FsTree)
		if err := vfs.MkdirAll(fs, filepath.Dir(dst), vfs.DirPerm); err != nil {
			return errorkind.Wrap(errorkind.TreeInvariantError, "preparing staging fstree directory")
		}
		if err := fs.WriteFile(dst, data, sys.FilePerm); err != nil {
			return errorkind.Wrap(errorkind.TreeInvariantError, "copying fstree into staging")
		}
	}

	const machineID = "/etc/machine-id"
	if ok, err := vfs.Exists(fs, machineID); err == nil && ok {
		data, err := fs.ReadFile(machineID)
		if err == nil {
			_ = fs.WriteFile(filepath.Join(stagingRootfs, "etc", "machine-id"), data, sys.FilePerm)
		}
	}

	return nil
}

// PostTransactions performs post_transactions(N): syncs edits made inside
// the staging chroot back to the boot/etc staging subvolumes, promotes the
// staging triple into N's triple, and removes the staging triple.
func (p *Protocol) PostTransactions(id paths.ID) (err error) {
	sess, ok := p.active[id]
	if !ok {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "no active staging session for snapshot %d", int(id))
	}

	cs := cleanstack.NewCleanStack()
	cs.Push(func() error {
		delete(p.active, id)
		return nil
	})
	defer func() {
		if cerr := cs.Cleanup(err); cerr != nil {
			err = cerr
		}
	}()

	mutable, err := vfs.Exists(p.s.FS(), paths.Mutable(sess.staging.Rootfs))
	if err != nil {
		return err
	}

	if err = clearDir(p.s, sess.staging.Boot); err != nil {
		return err
	}
	if err = clearDir(p.s, sess.staging.Etc); err != nil {
		return err
	}
	if err = p.copier.Copy(filepath.Join(sess.staging.Rootfs, "boot"), sess.staging.Boot); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "syncing boot back from staging for snapshot %d", int(id))
	}
	if err = p.copier.Copy(filepath.Join(sess.staging.Rootfs, "etc"), sess.staging.Etc); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "syncing etc back from staging for snapshot %d", int(id))
	}

	if err = p.preserveCache(sess.triple.Rootfs, sess.staging.Rootfs); err != nil {
		return err
	}

	if err = sess.mount.Close(); err != nil {
		return errorkind.Wrapf(errorkind.MountError, "tearing down staging chroot for snapshot %d", int(id))
	}

	for path, snap := range map[string]string{
		sess.triple.Rootfs: sess.staging.Rootfs,
		sess.triple.Boot:   sess.staging.Boot,
		sess.triple.Etc:    sess.staging.Etc,
	} {
		if err = p.subvol.Delete(path); err != nil {
			return err
		}
		if mutable {
			err = p.subvol.SnapRW(snap, path)
		} else {
			err = p.subvol.SnapRO(snap, path)
		}
		if err != nil {
			return err
		}
	}

	return p.ChrDelete(id)
}

func (p *Protocol) preserveCache(originalRootfs, stagingRootfs string) error {
	src := filepath.Join(originalRootfs, pacmanCache)
	ok, err := p.subvol.Exists(src)
	if err != nil || !ok {
		return nil
	}
	dst := filepath.Join(stagingRootfs, pacmanCache)
	if err := vfs.MkdirAll(p.s.FS(), dst, vfs.DirPerm); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "preparing package cache directory")
	}
	if err := p.copier.Copy(src, dst); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "preserving package manager cache")
	}
	return nil
}

// Run executes a command inside id's active staging chroot, between a
// successful Prepare and the matching PostTransactions. This is the hook
// the external collaborators (package manager, bootloader generator,
// arbitrary chroot commands) are invoked through.
func (p *Protocol) Run(id paths.ID, cmd string, args ...string) ([]byte, error) {
	sess, ok := p.active[id]
	if !ok {
		return nil, errorkind.Wrapf(errorkind.ProtocolAborted, "no active staging session for snapshot %d", int(id))
	}
	return sess.mount.Run(cmd, args...)
}

// Session returns the active staging session's mount orchestrator, for
// callers that need chrooted execution beyond a single buffered command
// (an interactive shell, an editor).
func (p *Protocol) Session(id paths.ID) (*chroot.Chroot, error) {
	sess, ok := p.active[id]
	if !ok {
		return nil, errorkind.Wrapf(errorkind.ProtocolAborted, "no active staging session for snapshot %d", int(id))
	}
	return sess.mount, nil
}

// StagingRoot returns the staging rootfs path for id's active session.
func (p *Protocol) StagingRoot(id paths.ID) (string, error) {
	sess, ok := p.active[id]
	if !ok {
		return "", errorkind.Wrapf(errorkind.ProtocolAborted, "no active staging session for snapshot %d", int(id))
	}
	return sess.staging.Rootfs, nil
}

// ChrDelete performs chr_delete(N): idempotently removes N's staging
// triple, used both for successful cleanup and for rollback on error.
func (p *Protocol) ChrDelete(id paths.ID) error {
	if sess, ok := p.active[id]; ok {
		_ = sess.mount.Close()
		delete(p.active, id)
	}

	staging := paths.ForStaging(id)
	for _, path := range []string{staging.Rootfs, staging.Boot, staging.Etc} {
		if err := p.subvol.Delete(path); err != nil {
			return errorkind.Wrapf(errorkind.SubvolError, "deleting staging subvolume %s", path)
		}
	}
	return nil
}

// Recover scans for staging triples left behind by a crash mid-promotion:
// a -chrN triple whose non-chr counterpart is missing means the process
// died between PostTransactions' "delete originals" and "recreate from
// staging" steps. The staging copy holds the committed state, so it is
// promoted into the regular triple and then removed. Staging triples whose
// originals are intact are left untouched; those are ordinary locks the
// user clears with unlock.
func (p *Protocol) Recover() error {
	rootfsDir := paths.Root + "/rootfs"
	ok, err := vfs.Exists(p.s.FS(), rootfsDir)
	if err != nil || !ok {
		return err
	}
	entries, err := p.s.FS().ReadDir(rootfsDir)
	if err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "scanning %s for staging leftovers", rootfsDir)
	}

	for _, e := range entries {
		idStr, found := strings.CutPrefix(e.Name(), "snapshot-chr")
		if !found {
			continue
		}
		n, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		id := paths.ID(n)

		triple := paths.ForID(id)
		present, err := p.subvol.Exists(triple.Rootfs)
		if err != nil {
			return err
		}
		if present {
			continue
		}

		p.s.Logger().Warn("Promoting interrupted staging copy of snapshot %d", n)

		staging := paths.ForStaging(id)
		mutable, err := vfs.Exists(p.s.FS(), paths.Mutable(staging.Rootfs))
		if err != nil {
			return err
		}
		for src, dst := range map[string]string{
			staging.Rootfs: triple.Rootfs,
			staging.Boot:   triple.Boot,
			staging.Etc:    triple.Etc,
		} {
			if mutable {
				err = p.subvol.SnapRW(src, dst)
			} else {
				err = p.subvol.SnapRO(src, dst)
			}
			if err != nil {
				return err
			}
		}
		if err := p.ChrDelete(id); err != nil {
			return err
		}
	}
	return nil
}

func clearDir(s *sys.System, dir string) error {
	entries, err := s.FS().ReadDir(dir)
	if err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "reading %s before clearing", dir)
	}
	for _, e := range entries {
		if err := s.FS().RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return errorkind.Wrapf(errorkind.SubvolError, "clearing %s", filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
