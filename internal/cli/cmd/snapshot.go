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

package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

type SnapshotFlags struct {
	Snapshot    int
	Base        int
	Description string
	Quiet       bool
}

var SnapshotArgs SnapshotFlags

func snapshotFlag() cli.Flag {
	return &cli.IntFlag{
		Name:        "snapshot",
		Aliases:     []string{"s"},
		Usage:       "Snapshot id to operate on",
		Destination: &SnapshotArgs.Snapshot,
	}
}

func descriptionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "desc",
		Aliases:     []string{"d"},
		Usage:       "Free-text snapshot description",
		Destination: &SnapshotArgs.Description,
	}
}

func NewNewCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "new",
		Aliases:   []string{"n"},
		Usage:     "Create a new snapshot tree from the base",
		UsageText: fmt.Sprintf("%s new [-d DESCRIPTION]", appName),
		Action:    action,
		Flags:     []cli.Flag{descriptionFlag()},
	}
}

func NewBranchCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "branch",
		Aliases:   []string{"b"},
		Usage:     "Create a branch under a snapshot, cloned from it",
		UsageText: fmt.Sprintf("%s branch -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewCloneCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "clone",
		Aliases:   []string{"c"},
		Usage:     "Clone a snapshot as a new tree under the base",
		UsageText: fmt.Sprintf("%s clone -s SNAPSHOT [-d DESCRIPTION]", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag(), descriptionFlag()},
	}
}

func NewCloneBranchCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "clone-branch",
		Aliases:   []string{"cb"},
		Usage:     "Clone a snapshot as a sibling branch",
		UsageText: fmt.Sprintf("%s clone-branch -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewCloneTreeCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "clone-tree",
		Aliases:   []string{"ct"},
		Usage:     "Clone a snapshot and its whole sub-tree",
		UsageText: fmt.Sprintf("%s clone-tree -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewCloneUnderCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "clone-under",
		Aliases:   []string{"cu"},
		Usage:     "Clone a snapshot as a child of another snapshot",
		UsageText: fmt.Sprintf("%s clone-under -s PARENT -b BASE", appName),
		Action:    action,
		Flags: []cli.Flag{
			snapshotFlag(),
			&cli.IntFlag{
				Name:        "base",
				Aliases:     []string{"b"},
				Usage:       "Snapshot id to clone from",
				Destination: &SnapshotArgs.Base,
			},
		},
	}
}

func NewDeleteCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "del",
		Aliases:   []string{"rm"},
		Usage:     "Delete snapshots and their descendants",
		UsageText: fmt.Sprintf("%s del [-q] SNAPSHOT...", appName),
		Action:    action,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "Do not ask for confirmation",
				Destination: &SnapshotArgs.Quiet,
			},
		},
	}
}

func NewDescCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "desc",
		Usage:     "Overwrite a snapshot's description",
		UsageText: fmt.Sprintf("%s desc -s SNAPSHOT -d DESCRIPTION", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag(), descriptionFlag()},
	}
}
