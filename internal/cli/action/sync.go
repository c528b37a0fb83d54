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
	"github.com/urfave/cli/v2"

	"github.com/ochibani/ash/internal/cli/cmd"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/pkgmgr"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/treesync"
	"github.com/ochibani/ash/pkg/upstate"
)

// Sync propagates a snapshot's package state to all of its descendants.
// Unless offline, the tree's root snapshot is refreshed first so the walk
// propagates current databases.
func Sync(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	root := paths.ID(cmd.SyncArgs.Tree)
	sy := treesync.New(s, f)

	updateTree := func() error {
		p := staging.New(s)
		if _, perr := p.Prepare(root); perr != nil {
			return perr
		}
		if rerr := pkgmgr.Refresh(stagedRunner{p, root}); rerr != nil {
			_ = p.ChrDelete(root)
			return rerr
		}
		return p.PostTransactions(root)
	}

	err = sy.SyncTree(root, cmd.SyncArgs.ForceOffline, cmd.SyncArgs.Live, updateTree)
	if werr := upstate.New(s).Record(err == nil); werr != nil {
		s.Logger().Warn("Could not record update state: %v", werr)
	}
	return err
}
