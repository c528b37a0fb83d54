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

// Package chroot is the MountOrchestrator: it turns a staging or deploy
// rootfs subvolume into a chrootable root by layering the host's live
// devices, pseudo-filesystems and network config on top of it, and tears
// the layering back down in reverse.
package chroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ochibani/ash/pkg/log"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/mounter"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

const efiFirmwarePath = "/sys/firmware/efi"

// mountSpec describes one entry of the orchestrator's mount set: how it is
// mounted, and whether its teardown must be synchronous (MNT_DETACH would
// otherwise leave the effect visible for too long, e.g. resolv.conf, or
// risks losing writes, e.g. /var).
type mountSpec struct {
	source string
	target string
	fstype string
	opts   []string
	sync   bool
}

// Chroot represents the staged mount layering for one rootfs path, and the
// means to run commands inside it.
type Chroot struct {
	path         string
	specs        []mountSpec
	activeMounts []mountSpec
	touchedFiles []string
	fs           vfs.FS
	mounter      mounter.Interface
	logger       log.Logger
	runner       sys.Runner
	syscall      sys.Syscall
}

type Opts func(c *Chroot)

// NewChroot builds the MountOrchestrator's full layering for path: a
// self-bind of path (so package-manager mountpoint checks see it as a
// mountpoint), host /dev /etc /home /root /var, proc with
// nosuid,noexec,nodev, tmpfs at run and tmp, sysfs, an optional efivarfs
// bind if the host has one, and finally /etc/resolv.conf.
func NewChroot(s *sys.System, path string, opts ...Opts) *Chroot {
	c := &Chroot{
		path:         path,
		specs:        defaultSpecs(s, path),
		activeMounts: []mountSpec{},
		touchedFiles: []string{},
		runner:       s.Runner(),
		logger:       s.Logger(),
		mounter:      s.Mounter(),
		fs:           s.FS(),
		syscall:      s.Syscall(),
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

func defaultSpecs(s *sys.System, path string) []mountSpec {
	specs := []mountSpec{
		{source: path, target: path, fstype: "", opts: []string{"bind"}, sync: false},
	}
	for _, name := range []string{"dev", "etc", "home", "root"} {
		specs = append(specs, mountSpec{source: "/" + name, target: filepath.Join(path, name), opts: []string{"bind"}})
	}
	specs = append(specs, mountSpec{source: "/var", target: filepath.Join(path, "var"), opts: []string{"bind"}, sync: true})
	specs = append(specs, mountSpec{source: "proc", target: filepath.Join(path, "proc"), fstype: "proc", opts: []string{"nosuid", "noexec", "nodev"}})
	specs = append(specs,
		mountSpec{source: "tmpfs", target: filepath.Join(path, "run"), fstype: "tmpfs", opts: []string{"rbind"}},
		mountSpec{source: "tmpfs", target: filepath.Join(path, "tmp"), fstype: "tmpfs", opts: []string{"rbind"}},
	)
	specs = append(specs, mountSpec{source: "sysfs", target: filepath.Join(path, "sys"), fstype: "sysfs"})

	if ok, _ := vfs.Exists(s.FS(), efiFirmwarePath); ok {
		specs = append(specs, mountSpec{
			source: filepath.Join(efiFirmwarePath, "efivars"),
			target: filepath.Join(path, "sys", "firmware", "efi", "efivars"),
			opts:   []string{"rbind"},
			sync:   true,
		})
	}

	specs = append(specs, mountSpec{source: "/etc/resolv.conf", target: filepath.Join(path, "etc", "resolv.conf"), opts: []string{"bind"}, sync: true})

	return specs
}

// WithoutDefaultBinds clears the orchestrator's mount set, leaving only
// whatever SetExtraMounts adds. Used by callers that have already prepared
// the chroot environment some other way (e.g. hollow's rbind of the real
// root).
func WithoutDefaultBinds() Opts {
	return func(c *Chroot) {
		c.specs = []mountSpec{}
	}
}

// ChrootedCallback runs the given callback in a chroot environment
func ChrootedCallback(s *sys.System, path string, bindMounts map[string]string, callback func() error, opts ...Opts) error {
	chroot := NewChroot(s, path, opts...)
	chroot.SetExtraMounts(bindMounts)
	return chroot.RunCallback(callback)
}

// SetExtraMounts appends additional bind mounts to the orchestrator's mount
// set. The map key is the path outside the chroot, the value is the path
// inside it (relative to the chroot root).
func (c *Chroot) SetExtraMounts(extraMounts map[string]string) {
	for outside, inside := range extraMounts {
		c.specs = append(c.specs, mountSpec{source: outside, target: filepath.Join(c.path, inside), opts: []string{"bind"}})
	}
}

// Prepare performs mount_chroot: lays down every spec in order, bind or
// typed mount as appropriate, tracking each as it goes so Close can reverse
// them. On any error it attempts best-effort teardown of whatever mounts
// already succeeded before returning.
func (c *Chroot) Prepare() (err error) {
	if len(c.activeMounts) > 0 {
		return fmt.Errorf("there are already active mountpoints for this instance")
	}

	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	for _, spec := range c.specs {
		if err = c.mount(spec); err != nil {
			return err
		}
	}

	return nil
}

func (c *Chroot) mount(spec mountSpec) error {
	if spec.fstype == "" {
		return c.bindMount(spec)
	}

	if err := vfs.MkdirAll(c.fs, spec.target, vfs.DirPerm); err != nil {
		return err
	}
	c.logger.Debug("Mounting %s (%s) to chroot", spec.target, spec.fstype)
	if err := c.mounter.Mount(spec.source, spec.target, spec.fstype, spec.opts); err != nil {
		return err
	}
	c.activeMounts = append(c.activeMounts, spec)
	return nil
}

func (c *Chroot) bindMount(spec mountSpec) error {
	info, err := c.fs.Stat(spec.source)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return c.bindMountDir(spec)
	}
	return c.bindMountFile(spec)
}

func (c *Chroot) bindMountDir(spec mountSpec) error {
	err := vfs.MkdirAll(c.fs, spec.target, vfs.DirPerm)
	if err != nil {
		return err
	}
	c.logger.Debug("Mounting %s to chroot", spec.target)
	err = c.mounter.Mount(spec.source, spec.target, spec.fstype, spec.opts)
	if err != nil {
		return err
	}
	c.activeMounts = append(c.activeMounts, spec)
	return nil
}

func (c *Chroot) bindMountFile(spec mountSpec) error {
	ok, err := vfs.Exists(c.fs, spec.target)
	if err != nil {
		return err
	}
	if !ok {
		err = vfs.MkdirAll(c.fs, filepath.Dir(spec.target), vfs.DirPerm)
		if err != nil {
			return err
		}
		err = c.fs.WriteFile(spec.target, []byte{}, vfs.FilePerm)
		if err != nil {
			return err
		}
		c.touchedFiles = append(c.touchedFiles, spec.target)
	}
	c.logger.Debug("Mounting %s to chroot", spec.target)
	err = c.mounter.Mount(spec.source, spec.target, spec.fstype, spec.opts)
	if err != nil {
		return err
	}
	c.activeMounts = append(c.activeMounts, spec)
	return nil
}

// Close performs umount_chroot: unmounts every active mount in reverse
// order, detaching (lazy unmount) every mount except those marked sync
// (resolv.conf, efivars, var), which are unmounted synchronously so their
// effect is guaranteed gone before Close returns.
func (c *Chroot) Close() (err error) {
	uFailures := []mountSpec{}
	// syncing before unmounting chroot paths as it has been noted that on
	// empty, trivial or super fast callbacks unmounting fails with a device busy error.
	_, _ = c.runner.Run("sync")
	slices.Reverse(c.activeMounts)
	for _, spec := range c.activeMounts {
		c.logger.Debug("Unmounting %s from chroot", spec.target)
		e := c.unmount(spec)
		if e != nil {
			uFailures = append(uFailures, spec)
			err = errors.Join(err, fmt.Errorf("unmounting %s: %w", spec.target, e))
			continue
		}
		if i := slices.Index(c.touchedFiles, spec.target); i >= 0 {
			e = c.fs.Remove(spec.target)
			if e != nil {
				err = errors.Join(err, fmt.Errorf("removing %s: %w", spec.target, e))
			}
			c.touchedFiles = slices.Delete(c.touchedFiles, i, i+1)
		}
	}
	slices.Reverse(uFailures)
	c.activeMounts = uFailures
	if err != nil {
		return fmt.Errorf("failed closing chroot environment, unmount or removal failures: %w", err)
	}
	return nil
}

func (c *Chroot) unmount(spec mountSpec) error {
	if spec.sync {
		return c.mounter.Unmount(spec.target)
	}
	return c.mounter.UnmountLazy(spec.target)
}

// RunCallback runs the given callback in a chroot environment
func (c *Chroot) RunCallback(callback func() error) (err error) {
	var currentPath string
	var oldRootF *os.File

	// Store the current path
	currentPath, err = os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current path: %w", err)
	}
	defer func() {
		tmpErr := os.Chdir(currentPath)
		if err == nil && tmpErr != nil {
			err = tmpErr
		}
	}()

	// Chroot to an absolute path
	if !filepath.IsAbs(c.path) {
		oldPath := c.path
		c.path = filepath.Clean(filepath.Join(currentPath, c.path))
		c.logger.Warn("Requested chroot path %s is not absolute, changing it to %s", oldPath, c.path)
	}

	// Store current root
	oldRootF, err = c.fs.OpenFile("/", os.O_RDONLY, vfs.DirPerm)
	if err != nil {
		return fmt.Errorf("opening current root: %w", err)
	}
	defer oldRootF.Close()

	if len(c.activeMounts) == 0 {
		err = c.Prepare()
		if err != nil {
			return fmt.Errorf("preparing chroot mounts: %w", err)
		}
		defer func() {
			tmpErr := c.Close()
			if err == nil {
				err = tmpErr
			}
		}()
	}
	// Change to new dir before running chroot!
	err = c.syscall.Chdir(c.path)
	if err != nil {
		return fmt.Errorf("chdir %s: %w", c.path, err)
	}

	err = c.syscall.Chroot(c.path)
	if err != nil {
		return fmt.Errorf("chroot %s: %w", c.path, err)
	}

	// Restore to old root
	defer func() {
		tmpErr := oldRootF.Chdir()
		if tmpErr != nil {
			c.logger.Error("can't change to old root dir")
			if err == nil {
				err = tmpErr
			}
		} else {
			tmpErr = c.syscall.Chroot(".")
			if tmpErr != nil {
				c.logger.Error("can't chroot back to old root")
				if err == nil {
					err = tmpErr
				}
			}
		}
	}()

	return callback()
}

// Run executes a command inside a chroot
func (c *Chroot) Run(command string, args ...string) (out []byte, err error) {
	callback := func() error {
		out, err = c.runner.Run(command, args...)
		return err
	}
	err = c.RunCallback(callback)
	if err != nil {
		c.logger.Error("can't run command %s with args %v on chroot: %s", command, args, err)
		c.logger.Debug("Output from command: %s", out)
	}
	return out, err
}
