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

// Package subvol is SubvolOps: the thin wrapper over the CoW primitives
// every higher-level component (staging, deploy, lifecycle) builds on. It
// never reasons about snapshot ids, triples or the forest; it only knows
// paths.
package subvol

import (
	"github.com/ochibani/ash/pkg/btrfs"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/sys"
)

// Ops is SubvolOps bound to a system.
type Ops struct {
	s *sys.System
}

// New returns a SubvolOps bound to s.
func New(s *sys.System) *Ops {
	return &Ops{s: s}
}

// SnapRO creates a read-only snapshot of src at dst.
func (o *Ops) SnapRO(src, dst string) error {
	if err := btrfs.CreateReadOnlySnapshot(o.s, dst, src); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "snapshotting %s -> %s (ro)", src, dst)
	}
	return nil
}

// SnapRW creates a writable snapshot of src at dst.
func (o *Ops) SnapRW(src, dst string) error {
	if err := btrfs.CreateReadWriteSnapshot(o.s, dst, src); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "snapshotting %s -> %s (rw)", src, dst)
	}
	return nil
}

// Delete removes the subvolume at path. Non-recursive: callers must delete
// children explicitly.
func (o *Ops) Delete(path string) error {
	ok, err := sys.Exists(o.s.FS(), path)
	if err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "checking existence of %s", path)
	}
	if !ok {
		return nil
	}
	if err := btrfs.DeleteSubvolume(o.s, path); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "deleting subvolume %s", path)
	}
	return nil
}

// SetDefault designates path as the next-boot default subvolume. The effect
// is only observed after reboot.
func (o *Ops) SetDefault(path string) error {
	if err := btrfs.SetDefaultSubvolume(o.s, path); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "setting default subvolume %s", path)
	}
	return nil
}

// SetReadOnly flips the ro property of an existing subvolume in place.
func (o *Ops) SetReadOnly(path string, readOnly bool) error {
	if err := btrfs.SetReadOnly(o.s, path, readOnly); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "setting ro=%t on %s", readOnly, path)
	}
	return nil
}

// List returns subvolume names below root matching filter.
func (o *Ops) List(root, filter string) ([]string, error) {
	names, err := btrfs.List(o.s, root, filter)
	if err != nil {
		return nil, errorkind.Wrapf(errorkind.SubvolError, "listing subvolumes under %s", root)
	}
	return names, nil
}

// Exists reports whether path exists. It does not check that path is a
// subvolume.
func (o *Ops) Exists(path string) (bool, error) {
	return sys.Exists(o.s.FS(), path)
}
