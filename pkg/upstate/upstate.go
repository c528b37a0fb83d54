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

// Package upstate is the two-line update-status log at
// /.snapshots/ash/upstate: first line "0" (succeeded) or "1" (failed),
// second line a timestamp.
package upstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/sys/vfs"
)

// Log reads and writes the update-status file.
type Log struct {
	s *sys.System
}

// New returns a Log bound to s.
func New(s *sys.System) *Log {
	return &Log{s: s}
}

// Record writes ok's outcome and the current time to the update-status log.
// Callers wrap the tree-sync / package-manager invocation it describes.
func (l *Log) Record(ok bool) error {
	result := "1"
	if ok {
		result = "0"
	}
	content := fmt.Sprintf("%s\n%s\n", result, time.Now().UTC().Format(time.RFC3339))

	if err := vfs.MkdirAll(l.s.FS(), paths.Root+"/ash", vfs.DirPerm); err != nil {
		return errorkind.Wrap(errorkind.SubvolError, "creating ash state directory")
	}
	if err := l.s.FS().WriteFile(paths.UpdateState, []byte(content), sys.FilePerm); err != nil {
		return errorkind.Wrap(errorkind.SubvolError, "writing upstate")
	}
	return nil
}

// Read returns the last recorded outcome and timestamp. success is false if the
// log has never been written.
func (l *Log) Read() (success bool, timestamp string, err error) {
	present, err := vfs.Exists(l.s.FS(), paths.UpdateState)
	if err != nil {
		return false, "", errorkind.Wrap(errorkind.SubvolError, "checking upstate")
	}
	if !present {
		return false, "", nil
	}

	data, err := l.s.FS().ReadFile(paths.UpdateState)
	if err != nil {
		return false, "", errorkind.Wrap(errorkind.SubvolError, "reading upstate")
	}

	lines := strings.SplitN(strings.TrimRight(string(data), "\n"), "\n", 2)
	success = len(lines) > 0 && lines[0] == "0"
	if len(lines) > 1 {
		timestamp = lines[1]
	}
	return success, timestamp, nil
}
