/*
Copyright © 2025 SUSE LLC
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

package btrfs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

const TopSubVol = "@"

// CreateReadOnlySnapshot creates a read-only btrfs snapshot at path from base,
// the form SubvolOps.snap_ro uses to materialize an immutable snapshot.
func CreateReadOnlySnapshot(s *sys.System, path, base string) error {
	return createSnapshot(s, path, base, true)
}

// CreateReadWriteSnapshot creates a writable btrfs snapshot at path from
// base, the form SubvolOps.snap_rw uses for mutable snapshots and every
// staging ("-chr") triple.
func CreateReadWriteSnapshot(s *sys.System, path, base string) error {
	return createSnapshot(s, path, base, false)
}

func createSnapshot(s *sys.System, path, base string, readOnly bool) error {
	s.Logger().Debug("Creating snapshot: %s", path)
	err := vfs.MkdirAll(s.FS(), filepath.Dir(path), vfs.DirPerm)
	if err != nil {
		return fmt.Errorf("creating snapshot subvolume path %s: %w", path, err)
	}

	args := []string{"subvolume", "snapshot"}
	if readOnly {
		args = append(args, "-r")
	}
	args = append(args, base, path)

	cmdOut, err := s.Runner().Run("btrfs", args...)
	if err != nil {
		return fmt.Errorf("creating snapshot subvolume '%s': %s: %w", path, string(cmdOut), err)
	}
	return nil
}

// SetReadOnly toggles the ro property of an existing subvolume, used by
// immutability_enable/disable to flip a snapshot's mutability in place.
func SetReadOnly(s *sys.System, path string, readOnly bool) error {
	cmdOut, err := s.Runner().Run("btrfs", "property", "set", "-ts", path, "ro", strconv.FormatBool(readOnly))
	if err != nil {
		return fmt.Errorf("setting ro=%t on subvolume '%s': %s: %w", readOnly, path, string(cmdOut), err)
	}
	return nil
}

// List returns the names of every subvolume below root whose path matches
// filter (a substring match against the subvolume's relative path), sorted
// as reported by btrfs.
func List(s *sys.System, root, filter string) ([]string, error) {
	out, err := s.Runner().Run("btrfs", "subvolume", "list", "-o", root)
	if err != nil {
		return nil, fmt.Errorf("listing subvolumes under '%s': %s: %w", root, string(out), err)
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[len(fields)-1]
		if filter == "" || strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	return names, nil
}

// DeleteSubvolume removes the given subvolume. Before removing the subvolume
// it sets the RW property to ensure it can be deleted, if deletion fails
// the property change remains applied.
func DeleteSubvolume(s *sys.System, path string) error {
	s.Logger().Debug("Setting rw property to subvolume: %s", path)
	_, err := s.Runner().Run("btrfs", "property", "set", "-ts", path, "ro", "false")
	if err != nil {
		return fmt.Errorf("setting rw permissions before deletion: %w", err)
	}
	_, err = s.Runner().Run("btrfs", "subvolume", "delete", "-c", path)
	return err
}

// SetDefaultSubvolume sets the given subvolume as the default subvolume to mount
func SetDefaultSubvolume(s *sys.System, path string) error {
	s.Logger().Debug("Setting default subvolume")
	_, err := s.Runner().Run("btrfs", "subvolume", "set-default", path)
	if err != nil {
		return fmt.Errorf("setting default subvolume to '%s': %w", path, err)
	}
	return nil
}
