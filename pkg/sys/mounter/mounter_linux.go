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

package mounter

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const procMounts = "/proc/mounts"

type mount struct {
	binary string
}

var _ Interface = (*mount)(nil)

// NewMounter returns a Mounter backed by the given mount(8) binary and
// /proc/mounts, the same external-collaborator boundary the staging
// protocol and the mount orchestrator mount through.
func NewMounter(binary string) Interface {
	return &mount{binary: binary}
}

func (m mount) Mount(source, target, fstype string, options []string) error {
	args := []string{}
	if fstype != "" {
		args = append(args, "-t", fstype)
	}
	if len(options) > 0 {
		args = append(args, "-o", strings.Join(options, ","))
	}
	args = append(args, source, target)

	cmd := exec.Command(m.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mounting %s on %s: %s: %w", source, target, string(out), err)
	}
	return nil
}

func (m mount) Unmount(target string) error {
	cmd := exec.Command("umount", target)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmounting %s: %s: %w", target, string(out), err)
	}
	return nil
}

func (m mount) UnmountLazy(target string) error {
	cmd := exec.Command("umount", "-l", target)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("lazily unmounting %s: %s: %w", target, string(out), err)
	}
	return nil
}

func (m mount) IsMountPoint(path string) (bool, error) {
	points, err := m.list()
	if err != nil {
		return false, err
	}
	for _, p := range points {
		if p.Path == path {
			return true, nil
		}
	}
	return false, nil
}

func (m mount) GetMountRefs(pathname string) ([]string, error) {
	points, err := m.list()
	if err != nil {
		return nil, err
	}

	var device string
	for _, p := range points {
		if p.Path == pathname {
			device = p.Device
			break
		}
	}
	if device == "" {
		return nil, fmt.Errorf("no mountpoint found for '%s'", pathname)
	}

	var refs []string
	for _, p := range points {
		if p.Device == device && p.Path != pathname {
			refs = append(refs, p.Path)
		}
	}
	return refs, nil
}

func (m mount) GetMountPoints(device string) ([]MountPoint, error) {
	points, err := m.list()
	if err != nil {
		return nil, err
	}

	var matched []MountPoint
	for _, p := range points {
		if p.Device == device {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// list parses /proc/mounts, the same source of truth the deployer uses to
// find the currently booted deploy slot.
func (m mount) list() ([]MountPoint, error) {
	f, err := os.Open(procMounts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", procMounts, err)
	}
	defer f.Close()

	var points []MountPoint
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		points = append(points, MountPoint{
			Device: fields[0],
			Path:   fields[1],
			Type:   fields[2],
			Opts:   strings.Split(fields[3], ","),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
