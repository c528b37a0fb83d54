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

// Package reflink copies directory trees the way the staging protocol
// needs for its boot/etc overlay and tree-sync's bulk rootfs propagation:
// copy-on-write when the underlying btrfs subvolume supports it, falling
// back to a regular copy otherwise, via "cp --reflink=auto".
package reflink

import (
	"fmt"

	"github.com/ochibani/ash/pkg/sys"
)

// Copier reflink-copies directory contents with the cp(1) binary.
type Copier struct {
	s *sys.System
}

// New returns a Copier bound to s.
func New(s *sys.System) *Copier {
	return &Copier{s: s}
}

// Copy copies the contents of source into target, both expected to already
// exist, reflinking where possible. Existing entries at target are
// overwritten.
func (c *Copier) Copy(source, target string) error {
	return c.run(source, target, false)
}

// CopyNoClobber copies the contents of source into target, reflinking where
// possible, but never overwrites an entry already present at target. Used
// by tree-sync to propagate parent state while preserving descendant-local
// additions.
func (c *Copier) CopyNoClobber(source, target string) error {
	return c.run(source, target, true)
}

func (c *Copier) run(source, target string, noClobber bool) error {
	fs := c.s.FS()
	log := c.s.Logger()

	if s, err := fs.RawPath(source); err == nil {
		source = s
	}
	if t, err := fs.RawPath(target); err == nil {
		target = t
	}

	args := []string{"--archive", "--reflink=auto"}
	if noClobber {
		args = append(args, "--no-clobber")
	}
	args = append(args, source+"/.", target)

	log.Debug("reflink copying %s -> %s", source, target)
	out, err := c.s.Runner().Run("cp", args...)
	if err != nil {
		log.Error("reflink copy finished with errors: %s", string(out))
		return fmt.Errorf("reflink copying %s to %s: %w", source, target, err)
	}
	return nil
}
