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
	"errors"
	"fmt"

	"github.com/ochibani/ash/pkg/sys/mounter"
)

var _ mounter.Interface = (*Mounter)(nil)

// Mounter is an in-memory fake mounter for tests that can be made to error
// out on demand, tracking mounts as plain MountPoint entries rather than
// shelling out or reading /proc/mounts.
type Mounter struct {
	ErrorOnMount   bool
	ErrorOnUnmount bool
	mounts         []mounter.MountPoint
}

// NewMounter returns an empty fake Mounter.
func NewMounter() *Mounter {
	return &Mounter{}
}

// Mount will return an error if ErrorOnMount is true
func (e *Mounter) Mount(source string, target string, fstype string, options []string) error {
	if e.ErrorOnMount {
		return errors.New("mount error")
	}
	e.mounts = append(e.mounts, mounter.MountPoint{Device: source, Path: target, Type: fstype, Opts: options})
	return nil
}

// Unmount will return an error if ErrorOnUnmount is true
func (e *Mounter) Unmount(target string) error {
	if e.ErrorOnUnmount {
		return errors.New("unmount error")
	}
	for i, mnt := range e.mounts {
		if mnt.Path == target {
			e.mounts = append(e.mounts[:i], e.mounts[i+1:]...)
			break
		}
	}
	return nil
}

// UnmountLazy behaves identically to Unmount in the fake: there is no
// kernel-level busy state to detach from.
func (e *Mounter) UnmountLazy(target string) error {
	return e.Unmount(target)
}

func (e *Mounter) IsMountPoint(file string) (bool, error) {
	for _, mnt := range e.mounts {
		if file == mnt.Path {
			return true, nil
		}
	}
	return false, nil
}

func (e *Mounter) GetMountRefs(pathname string) ([]string, error) {
	var device string
	mntPaths := []string{}

	for _, mnt := range e.mounts {
		if pathname == mnt.Path {
			device = mnt.Device
			break
		}
	}
	if device == "" {
		return mntPaths, fmt.Errorf("no mountpoint found for '%s'", pathname)
	}
	for _, mnt := range e.mounts {
		if device == mnt.Device && pathname != mnt.Path {
			mntPaths = append(mntPaths, mnt.Path)
		}
	}
	return mntPaths, nil
}

func (e *Mounter) GetMountPoints(device string) ([]mounter.MountPoint, error) {
	var mntLst []mounter.MountPoint
	for _, mnt := range e.mounts {
		if device == mnt.Device {
			mntLst = append(mntLst, mnt)
		}
	}
	return mntLst, nil
}

// List returns every mount point currently tracked by the fake.
func (e *Mounter) List() []mounter.MountPoint {
	return e.mounts
}
