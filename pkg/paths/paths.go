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

// Package paths is the pure, side-effect-free mapping from a snapshot id to
// every on-disk path the rest of the engine cares about. Nothing in this
// package touches the filesystem; it only computes strings.
package paths

import "fmt"

const (
	// Root is the filesystem layout's anchor directory.
	Root = "/.snapshots"

	rootfsDir = Root + "/rootfs"
	bootDir   = Root + "/boot"
	etcDir    = Root + "/etc"
	mutDirs   = Root + "/mutable_dirs"
	ashDir    = Root + "/ash"

	// DeploySlot and DeployAuxSlot are the two fixed, alternating boot
	// slots; they never appear in the forest.
	DeploySlot    = "deploy"
	DeployAuxSlot = "deploy-aux"

	// MutableMarker is the per-snapshot marker file that distinguishes a
	// mutable (read-write) snapshot from an immutable one.
	MutableMarker = "usr/share/ash/mutable"

	// SnapPointer records, inside a deploy slot, which user snapshot id is
	// materialized there.
	SnapPointer = "usr/share/ash/snap"

	// FsTree is where the persisted forest lives.
	FsTree = ashDir + "/fstree"

	// UpdateState is the two-line last-update-result log.
	UpdateState = ashDir + "/upstate"

	// PartHint is the drive-partition hint file.
	PartHint = ashDir + "/part"

	// Scratch is scratch space for operations that need a transient,
	// non-subvolume staging area, such as tree-sync's package database
	// backup.
	Scratch = Root + "/tmp"

	// DescDir holds one free-text description file per snapshot.
	DescDir = ashDir + "/snapshots"

	// ConfigFile is the per-snapshot key/value config, rooted under the
	// snapshot's own etc subvolume.
	ConfigFile = "ash.conf"
)

// Triple is the three CoW subvolume paths a snapshot id (or slot name)
// owns: rootfs, boot and etc.
type Triple struct {
	Rootfs string
	Boot   string
	Etc    string
}

// ID is a snapshot identifier. 0 is the immutable base, reserved.
type ID int

// Slot returns the path label used for a given id, e.g. "2".
func (i ID) Slot() string {
	return fmt.Sprintf("%d", int(i))
}

// ForID returns the on-disk triple for a regular (non-staging) snapshot id.
func ForID(id ID) Triple {
	return forSuffix(id.Slot())
}

// ForStaging returns the on-disk triple for id's staging ("-chr") copy.
func ForStaging(id ID) Triple {
	return forSuffix(fmt.Sprintf("chr%d", int(id)))
}

// ForSlot returns the on-disk triple for one of the two fixed deploy slots
// ("deploy" or "deploy-aux").
func ForSlot(slot string) Triple {
	return forSuffix(slot)
}

func forSuffix(suffix string) Triple {
	return Triple{
		Rootfs: fmt.Sprintf("%s/snapshot-%s", rootfsDir, suffix),
		Boot:   fmt.Sprintf("%s/boot-%s", bootDir, suffix),
		Etc:    fmt.Sprintf("%s/etc-%s", etcDir, suffix),
	}
}

// MutableDirSource returns the per-snapshot source path for a mutable_dirs
// entry (not shared across snapshots).
func MutableDirSource(id ID, path string) string {
	return fmt.Sprintf("%s/snapshot-%d/%s", mutDirs, int(id), path)
}

// SharedMutableDirSource returns the cross-snapshot source path for a
// mutable_dirs_shared entry.
func SharedMutableDirSource(path string) string {
	return fmt.Sprintf("%s/%s", mutDirs, path)
}

// DescFile returns the description file path for a snapshot id.
func DescFile(id ID) string {
	return fmt.Sprintf("%s/%d-desc", DescDir, int(id))
}

// Mutable returns the mutability-marker path for a rootfs root.
func Mutable(rootfs string) string {
	return fmt.Sprintf("%s/%s", rootfs, MutableMarker)
}

// Snap returns the snap-pointer path for a deploy slot's rootfs root.
func Snap(rootfs string) string {
	return fmt.Sprintf("%s/%s", rootfs, SnapPointer)
}

// Config returns the ash.conf path for a snapshot's etc subvolume.
func Config(etc string) string {
	return fmt.Sprintf("%s/%s", etc, ConfigFile)
}

// OtherSlot returns the deploy slot that is not the given one.
func OtherSlot(current string) string {
	if current == DeploySlot {
		return DeployAuxSlot
	}
	return DeploySlot
}
