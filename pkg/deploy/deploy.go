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

// Package deploy is the Deployer: dual-slot deploy/deploy-aux promotion,
// fstab rewriting, default-subvolume switch and boot-config regeneration.
package deploy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ochibani/ash/pkg/bootloader"
	"github.com/ochibani/ash/pkg/chroot"
	"github.com/ochibani/ash/pkg/configstore"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/fstab"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/reflink"
	"github.com/ochibani/ash/pkg/rsync"
	"github.com/ochibani/ash/pkg/subvol"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

const procMounts = "/proc/mounts"

// BootPartition is where a freshly mounted, dedicated boot partition is
// expected during switch_tmp's rewrite of the on-disk bootloader config.
// On systems without a separate boot partition this path simply doesn't
// exist, and the rewrite of it is skipped.
const BootPartition = "/boot/efi"

// Deployer promotes snapshots to become the running root at next boot.
type Deployer struct {
	s       *sys.System
	subvol  *subvol.Ops
	copier  *reflink.Copier
	rewrite *bootloader.Rewriter
}

// New returns a Deployer bound to s.
func New(s *sys.System) *Deployer {
	return &Deployer{
		s:       s,
		subvol:  subvol.New(s),
		copier:  reflink.New(s),
		rewrite: bootloader.New(s),
	}
}

// CurrentSlot scans /proc/mounts for the btrfs subvolume mounted at "/" and
// reports which of {deploy, deploy-aux} it is.
func (d *Deployer) CurrentSlot() (string, error) {
	data, err := d.s.FS().ReadFile(procMounts)
	if err != nil {
		return "", errorkind.Wrapf(errorkind.MountError, "reading %s", procMounts)
	}

	deploySuffix := "snapshot-" + paths.DeploySlot
	deployAuxSuffix := "snapshot-" + paths.DeployAuxSlot

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[1] != "/" {
			continue
		}
		opts := fields[3]
		switch {
		case strings.Contains(opts, deployAuxSuffix) || strings.Contains(fields[0], deployAuxSuffix):
			return paths.DeployAuxSlot, nil
		case strings.Contains(opts, deploySuffix) || strings.Contains(fields[0], deploySuffix):
			return paths.DeploySlot, nil
		}
	}
	return "", errorkind.Wrap(errorkind.MountError, "no deploy slot mounted at /")
}

// UpdateBoot regenerates the bootloader config from inside snapshot id's
// rootfs.
func (d *Deployer) UpdateBoot(id paths.ID) error {
	triple := paths.ForID(id)
	c := chroot.NewChroot(d.s, triple.Rootfs)
	return c.RunCallback(func() error {
		return d.rewrite.Generate("/")
	})
}

// Deploy performs deploy(N): promotes snapshot id to become root at next
// boot, via the dual-slot swap algorithm.
func (d *Deployer) Deploy(id paths.ID) error {
	if err := d.UpdateBoot(id); err != nil {
		return err
	}

	current, err := d.CurrentSlot()
	if err != nil {
		return err
	}
	target := paths.OtherSlot(current)

	currentTriple := paths.ForSlot(current)
	targetTriple := paths.ForSlot(target)

	if err := d.subvol.SetDefault(currentTriple.Rootfs); err != nil {
		return err
	}
	if err := d.tmpDelete(target); err != nil {
		return err
	}

	triple := paths.ForID(id)
	for src, dst := range map[string]string{
		triple.Rootfs: targetTriple.Rootfs,
		triple.Boot:   targetTriple.Boot,
		triple.Etc:    targetTriple.Etc,
	} {
		if err := d.subvol.SnapRW(src, dst); err != nil {
			return err
		}
	}

	for _, dir := range []string{"boot", "etc"} {
		if err := vfs.MkdirAll(d.s.FS(), filepath.Join(targetTriple.Rootfs, dir), vfs.DirPerm); err != nil {
			return errorkind.Wrapf(errorkind.SubvolError, "creating %s under target slot", dir)
		}
	}
	if err := d.s.FS().RemoveAll(filepath.Join(targetTriple.Rootfs, "var")); err != nil {
		return errorkind.Wrap(errorkind.SubvolError, "removing target slot var placeholder")
	}
	if err := d.copier.Copy(targetTriple.Boot, filepath.Join(targetTriple.Rootfs, "boot")); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "overlaying boot into target slot")
	}
	if err := d.copier.Copy(targetTriple.Etc, filepath.Join(targetTriple.Rootfs, "etc")); err != nil {
		return errorkind.Wrap(errorkind.ProtocolAborted, "overlaying etc into target slot")
	}

	snapPointer := paths.Snap(targetTriple.Rootfs)
	if err := vfs.MkdirAll(d.s.FS(), filepath.Dir(snapPointer), vfs.DirPerm); err != nil {
		return errorkind.Wrap(errorkind.SubvolError, "creating snap pointer directory")
	}
	if err := d.s.FS().WriteFile(snapPointer, []byte(fmt.Sprintf("%d\n", int(id))), sys.FilePerm); err != nil {
		return errorkind.Wrap(errorkind.SubvolError, "recording snap pointer in target slot")
	}

	mutable, err := vfs.Exists(d.s.FS(), paths.Mutable(triple.Rootfs))
	if err != nil {
		return err
	}
	if mutable {
		if err := dropRootReadOnly(d.s, targetTriple.Rootfs); err != nil {
			return err
		}
	}

	cfg, err := configstore.Load(d.s, paths.Config(targetTriple.Etc))
	if err != nil {
		return err
	}

	for _, entry := range cfg.MutableDirs {
		if err := d.bindMutableDir(id, target, paths.MutableDirSource(id, entry.Source), entry.Target); err != nil {
			return err
		}
	}
	if len(cfg.MutableDirsShared) > 0 {
		for _, entry := range cfg.MutableDirsShared {
			if err := d.bindMutableDir(id, target, paths.SharedMutableDirSource(entry.Source), entry.Target); err != nil {
				return err
			}
		}
	}

	if err := d.switchTmp(current, target); err != nil {
		return err
	}

	if ok, _ := vfs.Exists(d.s.FS(), filepath.Join(targetTriple.Rootfs, "usr/lib/ash/init-cleanup")); ok {
		c := chroot.NewChroot(d.s, targetTriple.Rootfs)
		if _, err := c.Run("/usr/lib/ash/init-cleanup"); err != nil {
			return errorkind.Wrap(errorkind.ProtocolAborted, "cleaning init-system state under target slot")
		}
	}

	return d.subvol.SetDefault(targetTriple.Rootfs)
}

func (d *Deployer) bindMutableDir(id paths.ID, target, source, target2 string) error {
	if err := vfs.MkdirAll(d.s.FS(), source, vfs.DirPerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "creating mutable dir source %s", source)
	}
	targetTriple := paths.ForSlot(target)
	mountPoint := filepath.Join(targetTriple.Rootfs, target2)
	if err := vfs.MkdirAll(d.s.FS(), mountPoint, vfs.DirPerm); err != nil {
		return errorkind.Wrapf(errorkind.SubvolError, "creating mutable dir target %s", mountPoint)
	}
	return appendFstabLine(d.s, filepath.Join(targetTriple.Rootfs, "etc/fstab"), fstab.Line{
		Device: source, MountPoint: "/" + target2, FileSystem: "none", Options: []string{"bind"},
	})
}

// appendFstabLine appends a single new entry to an existing fstab file.
// fstab.UpdateFstab only replaces existing lines matched by oldLines, so a
// brand new bind-mount entry for a mutable dir is appended directly instead.
func appendFstabLine(s *sys.System, fstabFile string, line fstab.Line) error {
	var existing []byte
	if ok, _ := vfs.Exists(s.FS(), fstabFile); ok {
		data, err := s.FS().ReadFile(fstabFile)
		if err != nil {
			return errorkind.Wrapf(errorkind.ConfigParseError, "reading %s", fstabFile)
		}
		existing = data
	}
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		existing = append(existing, '\n')
	}
	entry := strings.Join([]string{
		line.Device, line.MountPoint, line.FileSystem, strings.Join(line.Options, ","), "0", "0",
	}, "\t")
	existing = append(existing, []byte(entry+"\n")...)

	if err := s.FS().WriteFile(fstabFile, existing, sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "appending mutable dir entry to %s", fstabFile)
	}
	return nil
}

// tmpDelete clears the target slot's triple in preparation for a new
// deploy, same primitive chr_delete uses for a staging triple.
func (d *Deployer) tmpDelete(slot string) error {
	triple := paths.ForSlot(slot)
	for _, path := range []string{triple.Rootfs, triple.Boot, triple.Etc} {
		if err := d.subvol.Delete(path); err != nil {
			return err
		}
	}
	return nil
}

// switchTmp rewrites bootloader configuration in the target slot and in a
// freshly mounted boot partition so every path referencing the source
// slot's subvolume name becomes the target slot's, rewrites /etc/fstab
// inside target for boot/etc/rootfs subvolume names, and appends a "last
// booted deployment" trailer entry.
func (d *Deployer) switchTmp(source, target string) error {
	targetTriple := paths.ForSlot(target)

	grubCfg := filepath.Join(targetTriple.Rootfs, "boot/grub2/grub.cfg")
	if ok, _ := vfs.Exists(d.s.FS(), grubCfg); ok {
		if err := d.rewrite.RewriteSubvolume(grubCfg, "snapshot-"+source, "snapshot-"+target); err != nil {
			return err
		}
	}

	if hint, herr := bootloader.PartHint(d.s); herr == nil && hint != "" {
		if pts, merr := d.s.Mounter().GetMountPoints(hint); merr == nil && len(pts) == 0 {
			d.s.Logger().Warn("Boot partition %s from the partition hint is not mounted", hint)
		}
	}

	if ok, _ := vfs.Exists(d.s.FS(), BootPartition); ok {
		// The boot partition needs the promoted kernel and initramfs
		// before its config can point at them. Additive sync: the other
		// slot's files stay in place for its boot entries.
		if err := rsync.NewRsync(d.s).SyncData(targetTriple.Boot, BootPartition); err != nil {
			return errorkind.Wrap(errorkind.ProtocolAborted, "syncing boot files into the boot partition")
		}
		bootGrubCfg := filepath.Join(BootPartition, "grub2/grub.cfg")
		if ok, _ := vfs.Exists(d.s.FS(), bootGrubCfg); ok {
			if err := d.rewrite.RewriteSubvolume(bootGrubCfg, "snapshot-"+source, "snapshot-"+target); err != nil {
				return err
			}
		}
	}

	fstabFile := filepath.Join(targetTriple.Rootfs, "etc/fstab")
	if ok, _ := vfs.Exists(d.s.FS(), fstabFile); ok {
		lines, err := fstab.ReadFstab(d.s, fstabFile)
		if err != nil {
			return errorkind.Wrap(errorkind.ConfigParseError, "reading target fstab")
		}
		var oldLines, newLines []fstab.Line
		for _, line := range lines {
			if updated, changed := renameSlotRefs(line, source, target); changed {
				oldLines = append(oldLines, line)
				newLines = append(newLines, updated)
			}
		}
		if len(oldLines) > 0 {
			if err := fstab.UpdateFstab(d.s, fstabFile, oldLines, newLines); err != nil {
				return errorkind.Wrap(errorkind.ConfigParseError, "writing target fstab")
			}
		}
	}

	if ok, _ := vfs.Exists(d.s.FS(), grubCfg); ok {
		if err := d.rewrite.AppendTrailer(grubCfg, "# last booted deployment: "+target); err != nil {
			return err
		}
	}

	return nil
}

// renameSlotRefs rewrites every subvolume name referencing the source
// slot to the target slot within a single fstab line.
func renameSlotRefs(line fstab.Line, source, target string) (fstab.Line, bool) {
	replace := func(s string) string {
		s = strings.ReplaceAll(s, "boot-"+source, "boot-"+target)
		s = strings.ReplaceAll(s, "etc-"+source, "etc-"+target)
		return strings.ReplaceAll(s, "snapshot-"+source, "snapshot-"+target)
	}

	changed := false
	updated := line
	if r := replace(line.Device); r != line.Device {
		updated.Device = r
		changed = true
	}
	var opts []string
	for _, o := range line.Options {
		r := replace(o)
		if r != o {
			changed = true
		}
		opts = append(opts, r)
	}
	updated.Options = opts
	return updated, changed
}

// dropRootReadOnly removes "ro" from the "/" entry of the fstab at
// rootfs/etc/fstab, so a mutable snapshot boots writable.
func dropRootReadOnly(s *sys.System, rootfs string) error {
	fstabFile := filepath.Join(rootfs, "etc/fstab")
	lines, err := fstab.ReadFstab(s, fstabFile)
	if err != nil {
		return errorkind.Wrap(errorkind.ConfigParseError, "reading fstab to drop ro")
	}

	for _, line := range lines {
		if line.MountPoint != "/" {
			continue
		}
		updated := line
		updated.Options = removeOption(line.Options, "ro")
		if err := fstab.UpdateFstab(s, fstabFile, []fstab.Line{line}, []fstab.Line{updated}); err != nil {
			return errorkind.Wrap(errorkind.ConfigParseError, "writing fstab after dropping ro")
		}
	}
	return nil
}

func removeOption(opts []string, drop string) []string {
	var out []string
	for _, o := range opts {
		if o != drop {
			out = append(out, o)
		}
	}
	return out
}

// Rollback performs rollback(): clones the currently running deploy slot
// as a new tree node, records a "rollback" description, and deploys it.
func (d *Deployer) Rollback(findNew func() paths.ID, appendBase func(paths.ID) error, writeDesc func(paths.ID, string) error) (paths.ID, error) {
	current, err := d.CurrentSlot()
	if err != nil {
		return 0, err
	}
	currentTriple := paths.ForSlot(current)

	i := findNew()
	triple := paths.ForID(i)

	mutable, err := vfs.Exists(d.s.FS(), paths.Mutable(currentTriple.Rootfs))
	if err != nil {
		return 0, err
	}

	for src, dst := range map[string]string{
		currentTriple.Rootfs: triple.Rootfs,
		currentTriple.Boot:   triple.Boot,
		currentTriple.Etc:    triple.Etc,
	} {
		if mutable {
			err = d.subvol.SnapRW(src, dst)
		} else {
			err = d.subvol.SnapRO(src, dst)
		}
		if err != nil {
			return 0, err
		}
	}

	if err := appendBase(i); err != nil {
		return 0, err
	}
	if err := writeDesc(i, "rollback"); err != nil {
		return 0, err
	}

	return i, d.Deploy(i)
}
