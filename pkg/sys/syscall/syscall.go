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

// Package syscall wraps the raw chroot/chdir syscalls used by the chroot
// staging protocol, so sys.System can substitute a fake in tests without
// ever touching the real root of the test process.
package syscall

import realsyscall "syscall"

type realSyscall struct{}

// Syscall returns the real, OS-backed implementation of sys.Syscall.
func Syscall() *realSyscall {
	return &realSyscall{}
}

func (realSyscall) Chroot(path string) error {
	return realsyscall.Chroot(path)
}

func (realSyscall) Chdir(path string) error {
	return realsyscall.Chdir(path)
}
