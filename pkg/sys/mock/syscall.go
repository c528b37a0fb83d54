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

	"github.com/ochibani/ash/pkg/sys"
)

var _ sys.Syscall = (*Syscall)(nil)

// Syscall is a fake of sys.Syscall that records every chroot/chdir call
// instead of touching the real process root, so chroot package tests can
// run unprivileged.
type Syscall struct {
	ErrorOnChroot bool
	ErrorOnChdir  bool
	chrootCalls   []string
	chdirCalls    []string
}

func (s *Syscall) Chroot(path string) error {
	s.chrootCalls = append(s.chrootCalls, path)
	if s.ErrorOnChroot {
		return errors.New("chroot error")
	}
	return nil
}

func (s *Syscall) Chdir(path string) error {
	s.chdirCalls = append(s.chdirCalls, path)
	if s.ErrorOnChdir {
		return errors.New("chdir error")
	}
	return nil
}

// WasChrootCalledWith reports whether Chroot was ever called with path.
func (s *Syscall) WasChrootCalledWith(path string) bool {
	for _, c := range s.chrootCalls {
		if c == path {
			return true
		}
	}
	return false
}

// WasChdirCalledWith reports whether Chdir was ever called with path.
func (s *Syscall) WasChdirCalledWith(path string) bool {
	for _, c := range s.chdirCalls {
		if c == path {
			return true
		}
	}
	return false
}
