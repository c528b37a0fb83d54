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
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ochibani/ash/internal/cli/cmd"
	"github.com/ochibani/ash/pkg/descstore"
	"github.com/ochibani/ash/pkg/lifecycle"
	"github.com/ochibani/ash/pkg/paths"
)

func New(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	id, err := lifecycle.New(s).NewSnapshot(f, cmd.SnapshotArgs.Description)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func Branch(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	n := paths.ID(cmd.SnapshotArgs.Snapshot)
	id, err := lifecycle.New(s).CloneUnder(f, n, n)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func Clone(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	n := paths.ID(cmd.SnapshotArgs.Snapshot)
	desc := cmd.SnapshotArgs.Description
	if desc == "" {
		desc = fmt.Sprintf("clone of %d", int(n))
	}
	id, err := lifecycle.New(s).CloneAsTree(f, n, desc)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func CloneBranch(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	id, err := lifecycle.New(s).CloneBranch(f, paths.ID(cmd.SnapshotArgs.Snapshot))
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func CloneTree(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	id, err := lifecycle.New(s).CloneRecursive(f, paths.ID(cmd.SnapshotArgs.Snapshot))
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func CloneUnder(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	id, err := lifecycle.New(s).CloneUnder(f,
		paths.ID(cmd.SnapshotArgs.Snapshot), paths.ID(cmd.SnapshotArgs.Base))
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func Delete(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}
	ids, err := snapshotIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no snapshot ids given")
	}

	return lifecycle.New(s).DeleteNode(f, ids, cmd.SnapshotArgs.Quiet, func(id paths.ID) bool {
		return confirm(fmt.Sprintf("delete snapshot %d and all of its descendants?", int(id)))
	})
}

func Desc(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	return descstore.New(s).Write(paths.ID(cmd.SnapshotArgs.Snapshot), cmd.SnapshotArgs.Description)
}
