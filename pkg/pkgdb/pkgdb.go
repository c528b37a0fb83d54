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

// Package pkgdb reads and manipulates the package manager's local database,
// the one piece of rootfs state tree-sync and the read-only views reason
// about directly rather than through the package manager itself. The aur
// config key (see pkg/configstore) implies an Arch-based target, so the
// convention followed here is pacman's: one directory per installed
// package under var/lib/pacman/local, named "<name>-<version>-<release>".
package pkgdb

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/reflink"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

// Dir is the local package database directory, relative to a rootfs root.
const Dir = "var/lib/pacman/local"

// Entries maps installed package name -> its database entry directory name
// ("<name>-<version>-<release>") for the local database under rootfs.
func Entries(s *sys.System, rootfs string) (map[string]string, error) {
	dbDir := filepath.Join(rootfs, Dir)

	ok, err := vfs.Exists(s.FS(), dbDir)
	if err != nil {
		return nil, errorkind.Wrapf(errorkind.SubvolError, "checking package database %s", dbDir)
	}
	if !ok {
		return map[string]string{}, nil
	}

	entries, err := s.FS().ReadDir(dbDir)
	if err != nil {
		return nil, errorkind.Wrapf(errorkind.SubvolError, "reading package database %s", dbDir)
	}

	out := map[string]string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := nameFromEntry(e.Name())
		if name == "" {
			continue
		}
		out[name] = e.Name()
	}
	return out, nil
}

// nameFromEntry strips the trailing "-<version>-<release>" off a pacman
// local-db entry directory name, e.g. "glibc-2.39-2" -> "glibc".
func nameFromEntry(entry string) string {
	parts := strings.Split(entry, "-")
	if len(parts) < 3 {
		return entry
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

// Names returns the sorted installed package names for rootfs.
func Names(s *sys.System, rootfs string) ([]string, error) {
	entries, err := Entries(s, rootfs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CopyEntry reflink-copies pkg's database entry directory from srcRootfs'
// database into dstRootfs', using entryDir as the on-disk directory name
// (as returned by Entries).
func CopyEntry(s *sys.System, copier *reflink.Copier, srcRootfs, dstRootfs, entryDir string) error {
	src := filepath.Join(srcRootfs, Dir, entryDir)
	dst := filepath.Join(dstRootfs, Dir, entryDir)

	if err := vfs.MkdirAll(s.FS(), dst, vfs.DirPerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "creating package database entry %s", dst)
	}
	if err := copier.Copy(src, dst); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "copying package database entry %s", entryDir)
	}
	return nil
}

// Clear removes every entry from rootfs' local database directory.
func Clear(s *sys.System, rootfs string) error {
	dbDir := filepath.Join(rootfs, Dir)
	ok, err := vfs.Exists(s.FS(), dbDir)
	if err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "checking package database %s", dbDir)
	}
	if !ok {
		return nil
	}
	entries, err := s.FS().ReadDir(dbDir)
	if err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "reading package database %s", dbDir)
	}
	for _, e := range entries {
		if err := s.FS().RemoveAll(filepath.Join(dbDir, e.Name())); err != nil {
			return errorkind.Wrapf(errorkind.SubvolError, "clearing package database entry %s", e.Name())
		}
	}
	return nil
}
