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

// Package bootloader is the narrow slice of bootloader management
// switch_tmp needs: rewriting subvolume-name substrings inside an existing
// grub config and appending a trailer entry. It never generates a config
// from scratch; that is grub2-mkconfig's job, invoked as an external
// collaborator and retried with backoff since it touches disk and can
// transiently fail while another process holds the target partition.
package bootloader

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

const generator = "grub2-mkconfig"

// Rewriter rewrites an on-disk bootloader config in place.
type Rewriter struct {
	s *sys.System
}

// New returns a Rewriter bound to s.
func New(s *sys.System) *Rewriter {
	return &Rewriter{s: s}
}

// RewriteSubvolume replaces every occurrence of fromSubvol with toSubvol in
// the config at path, the substring rewrite switch_tmp applies so a grub
// entry built for the source deploy slot boots the target slot instead.
func (r *Rewriter) RewriteSubvolume(path, fromSubvol, toSubvol string) error {
	data, err := r.s.FS().ReadFile(path)
	if err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "reading bootloader config %s", path)
	}

	rewritten := strings.ReplaceAll(string(data), fromSubvol, toSubvol)
	if err := r.s.FS().WriteFile(path, []byte(rewritten), sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "writing bootloader config %s", path)
	}
	return nil
}

// AppendTrailer appends a single line to the config at path, used to record
// the "last booted deployment" entry after a successful switch_tmp.
func (r *Rewriter) AppendTrailer(path, line string) error {
	ok, err := vfs.Exists(r.s.FS(), path)
	if err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "checking bootloader config %s", path)
	}

	var existing []byte
	if ok {
		existing, err = r.s.FS().ReadFile(path)
		if err != nil {
			return errorkind.Wrapf(errorkind.ConfigParseError, "reading bootloader config %s", path)
		}
	}

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		existing = append(existing, '\n')
	}
	existing = append(existing, []byte(line+"\n")...)

	if err := r.s.FS().WriteFile(path, existing, sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "appending to bootloader config %s", path)
	}
	return nil
}

// Generate regenerates the bootloader config from inside root by invoking
// the external grub config generator, retrying with backoff since it can
// transiently fail on a partition another process is briefly touching.
func (r *Rewriter) Generate(root string, args ...string) error {
	op := func() error {
		fullArgs := append([]string{"-o", filepath.Join(root, "boot/grub2/grub.cfg")}, args...)
		_, err := r.s.Runner().RunContext(context.Background(), generator, fullArgs...)
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 30 * time.Second
	b := backoff.WithMaxRetries(exp, 3)
	if err := backoff.Retry(op, b); err != nil {
		return errorkind.Wrapf(errorkind.ProtocolAborted, "regenerating bootloader config under %s", root)
	}
	return nil
}

// PartHint reads the drive-partition hint recording which partition holds
// the boot files, written once at install time.
func PartHint(s *sys.System) (string, error) {
	ok, err := vfs.Exists(s.FS(), paths.PartHint)
	if err != nil {
		return "", errorkind.Wrap(errorkind.ConfigParseError, "checking partition hint")
	}
	if !ok {
		return "", nil
	}
	data, err := s.FS().ReadFile(paths.PartHint)
	if err != nil {
		return "", errorkind.Wrap(errorkind.ConfigParseError, "reading partition hint")
	}
	return strings.TrimSpace(string(data)), nil
}

// SetPartHint records the boot partition device.
func SetPartHint(s *sys.System, device string) error {
	if err := vfs.MkdirAll(s.FS(), filepath.Dir(paths.PartHint), vfs.DirPerm); err != nil {
		return errorkind.Wrap(errorkind.ConfigParseError, "creating partition hint directory")
	}
	if err := s.FS().WriteFile(paths.PartHint, []byte(device+"\n"), sys.FilePerm); err != nil {
		return errorkind.Wrap(errorkind.ConfigParseError, "writing partition hint")
	}
	return nil
}
