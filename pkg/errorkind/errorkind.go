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

// Package errorkind gives the snapshot engine's error kinds a single
// identity the CLI layer can branch on with errors.Is, regardless of how
// many times the underlying error has been wrapped on its way up.
package errorkind

import "github.com/pkg/errors"

// Kind is a sentinel identifying one of the error taxonomies the engine
// reports. Call sites wrap it with Wrap/Wrapf to attach the
// operation-specific detail (snapshot id, path, underlying failure text).
type Kind error

var (
	// SnapshotMissing: a referenced id has no rootfs subvolume.
	SnapshotMissing Kind = errors.New("snapshot missing")
	// SnapshotLocked: a staging triple exists; instruct the user to unlock.
	SnapshotLocked Kind = errors.New("snapshot locked")
	// BaseImmutable: attempt to mutate id 0.
	BaseImmutable Kind = errors.New("base snapshot is immutable")
	// DeployedProtected: attempt to delete the currently booted or
	// next-boot snapshot.
	DeployedProtected Kind = errors.New("snapshot is currently deployed")
	// SubvolError: underlying CoW subvolume primitive failure.
	SubvolError Kind = errors.New("subvolume operation failed")
	// MountError: underlying mount/bind-mount primitive failure.
	MountError Kind = errors.New("mount operation failed")
	// ProtocolAborted: mutation failed inside staging; staging has been
	// cleaned, the original snapshot preserved.
	ProtocolAborted Kind = errors.New("staging protocol aborted")
	// ConfigParseError: malformed ash.conf; recoverable, falls back to
	// defaults.
	ConfigParseError Kind = errors.New("config parse error")
	// TreeInvariantError: forest load/save found a cycle, missing parent,
	// or id collision.
	TreeInvariantError Kind = errors.New("tree invariant violated")
)

// Wrap attaches msg to kind while preserving kind as the error's Cause, so
// that errors.Is(result, kind) still holds after propagation.
func Wrap(kind Kind, msg string) error {
	return errors.Wrap(kind, msg)
}

// Wrapf is Wrap with Printf-style formatting.
func Wrapf(kind Kind, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}

// Is reports whether err (or anything it wraps) is kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
