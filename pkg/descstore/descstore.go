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

// Package descstore manages the per-snapshot human description file.
package descstore

import (
	"strings"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

const mutableSuffix = " MUTABLE"

// Store reads and writes description files.
type Store struct {
	s *sys.System
}

// New returns a description Store bound to s.
func New(s *sys.System) *Store {
	return &Store{s: s}
}

// Write overwrites id's description with text.
func (st *Store) Write(id paths.ID, text string) error {
	if err := vfs.MkdirAll(st.s.FS(), paths.DescDir, vfs.DirPerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "creating description directory for %d", int(id))
	}
	if err := st.s.FS().WriteFile(paths.DescFile(id), []byte(text), sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "writing description for %d", int(id))
	}
	return nil
}

// Read returns id's current description, or "" if none has been written.
func (st *Store) Read(id paths.ID) (string, error) {
	ok, err := sys.Exists(st.s.FS(), paths.DescFile(id))
	if err != nil {
		return "", errorkind.Wrapf(errorkind.SubvolError, "checking description for %d", int(id))
	}
	if !ok {
		return "", nil
	}
	data, err := st.s.FS().ReadFile(paths.DescFile(id))
	if err != nil {
		return "", errorkind.Wrapf(errorkind.SubvolError, "reading description for %d", int(id))
	}
	return string(data), nil
}

// Clear removes id's description file. Used on snapshot deletion.
func (st *Store) Clear(id paths.ID) error {
	if err := st.s.FS().RemoveAll(paths.DescFile(id)); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "clearing description for %d", int(id))
	}
	return nil
}

// MarkMutable appends " MUTABLE" to id's description, if not already
// present.
func (st *Store) MarkMutable(id paths.ID) error {
	text, err := st.Read(id)
	if err != nil {
		return err
	}
	if strings.HasSuffix(text, mutableSuffix) {
		return nil
	}
	return st.Write(id, text+mutableSuffix)
}

// MarkImmutable strips a trailing " MUTABLE" from id's description, if
// present.
func (st *Store) MarkImmutable(id paths.ID) error {
	text, err := st.Read(id)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(text, mutableSuffix) {
		return nil
	}
	return st.Write(id, strings.TrimSuffix(text, mutableSuffix))
}
