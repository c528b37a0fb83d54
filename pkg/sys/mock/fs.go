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

package mock

import (
	"io/fs"
	"os"

	gvfst "github.com/twpayne/go-vfs/v4/vfst"

	"github.com/ochibani/ash/pkg/sys/vfs"
)

// TestFS builds a throwaway, real on-disk filesystem seeded from root (a
// vfst.Builder-style description; nil for an empty tree), returning it as
// our vfs.FS together with a cleanup func that removes the backing
// temporary directory.
func TestFS(root interface{}) (vfs.FS, func(), error) {
	tfs, cleanup, err := gvfst.NewTestFS(root)
	if err != nil {
		return nil, nil, err
	}
	return tfs, cleanup, nil
}

var _ vfs.FS = (*readOnlyFS)(nil)

// readOnlyFS wraps an existing vfs.FS, rejecting every mutating call with
// fs.ErrPermission. Used to simulate an immutable (ro) snapshot subvolume
// in tests without actually mounting btrfs.
type readOnlyFS struct {
	vfs.FS
}

// ReadOnlyTestFS wraps fs so every write-like call fails, modelling a
// read-only snapshot's rootfs.
func ReadOnlyTestFS(base vfs.FS) (vfs.FS, error) {
	return &readOnlyFS{FS: base}, nil
}

func (readOnlyFS) Chmod(string, fs.FileMode) error            { return fs.ErrPermission }
func (readOnlyFS) Create(string) (*os.File, error)            { return nil, fs.ErrPermission }
func (readOnlyFS) Link(string, string) error                  { return fs.ErrPermission }
func (readOnlyFS) Mkdir(string, fs.FileMode) error             { return fs.ErrPermission }
func (readOnlyFS) Remove(string) error                         { return fs.ErrPermission }
func (readOnlyFS) RemoveAll(string) error                       { return fs.ErrPermission }
func (readOnlyFS) Rename(string, string) error                  { return fs.ErrPermission }
func (readOnlyFS) Symlink(string, string) error                 { return fs.ErrPermission }
func (readOnlyFS) WriteFile(string, []byte, fs.FileMode) error { return fs.ErrPermission }
func (r readOnlyFS) OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, fs.ErrPermission
	}
	return r.FS.OpenFile(name, flag, perm)
}
