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

// Package pkgmgr drives the external package manager. The engine never
// interprets package metadata itself; it invokes pacman (or an AUR helper
// when the snapshot's config enables it) inside an active staging chroot
// and propagates the result. The actual chroot execution is abstracted as
// a Runner so callers hand in either a staging session or a plain host
// runner.
package pkgmgr

import (
	"fmt"
)

// Runner executes a command wherever package management should happen,
// typically inside a staging chroot.
type Runner interface {
	Run(cmd string, args ...string) ([]byte, error)
}

const (
	pacman    = "pacman"
	aurHelper = "paru"
)

// Install installs pkgs. With aur, the AUR helper is used so repository
// and AUR packages resolve through the same frontend.
func Install(r Runner, aur bool, pkgs ...string) error {
	cmd := pacman
	if aur {
		cmd = aurHelper
	}
	args := append([]string{"-S", "--noconfirm", "--needed"}, pkgs...)
	if out, err := r.Run(cmd, args...); err != nil {
		return fmt.Errorf("installing packages: %s: %w", string(out), err)
	}
	return nil
}

// Remove uninstalls pkgs together with their now-unneeded dependencies.
func Remove(r Runner, pkgs ...string) error {
	args := append([]string{"-Rns", "--noconfirm"}, pkgs...)
	if out, err := r.Run(pacman, args...); err != nil {
		return fmt.Errorf("removing packages: %s: %w", string(out), err)
	}
	return nil
}

// Upgrade performs a full system upgrade, forcing a database refresh first
// so a stale mirror state inherited from the parent snapshot cannot mask
// updates.
func Upgrade(r Runner, aur bool) error {
	cmd := pacman
	if aur {
		cmd = aurHelper
	}
	if out, err := r.Run(cmd, "-Syyu", "--noconfirm"); err != nil {
		return fmt.Errorf("upgrading system: %s: %w", string(out), err)
	}
	return nil
}

// Refresh re-syncs the package databases without installing anything.
func Refresh(r Runner) error {
	if out, err := r.Run(pacman, "-Syy"); err != nil {
		return fmt.Errorf("refreshing package databases: %s: %w", string(out), err)
	}
	return nil
}
