/*
Copyright © 2025 SUSE LLC
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

package action

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ochibani/ash/internal/cli/cmd"
	"github.com/ochibani/ash/pkg/lifecycle"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/sys"
)

func ImmutabilityEnable(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	return lifecycle.New(s).ImmutabilityEnable(paths.ID(cmd.SnapshotArgs.Snapshot))
}

func ImmutabilityDisable(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	return lifecycle.New(s).ImmutabilityDisable(paths.ID(cmd.SnapshotArgs.Snapshot))
}

// editorPreference is the fallback order when EDITOR is unset.
var editorPreference = []string{"nano", "vi", "vim", "nvim", "micro"}

// Edit stages a snapshot, opens its configuration in the user's editor and
// commits the staging copy when the editor exits cleanly.
func Edit(ctx *cli.Context) error {
	editor := chooseEditor(os.Getenv("EDITOR"))
	if editor == "" {
		return cli.Exit("no editor available; set EDITOR", 1)
	}

	// The edit happens under <staging>/etc, the copy post_transactions
	// syncs back over the etc subvolume; editing etc-chrN directly would
	// be overwritten by that sync.
	return withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		root, err := p.StagingRoot(id)
		if err != nil {
			return err
		}
		conf := filepath.Join(root, "etc", paths.ConfigFile)
		raw, err := s.FS().RawPath(conf)
		if err != nil {
			raw = conf
		}
		return runInteractive(editor, raw)
	})
}

// chooseEditor honors an explicit EDITOR and otherwise probes the
// preference order for the first binary on PATH.
func chooseEditor(env string) string {
	if env != "" {
		return env
	}
	for _, candidate := range editorPreference {
		if sys.CommandExists(candidate) {
			return candidate
		}
	}
	return ""
}
