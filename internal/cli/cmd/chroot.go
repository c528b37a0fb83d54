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

func NewChrootCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "chroot",
		Aliases:   []string{"chr"},
		Usage:     "Open an interactive shell inside a staged snapshot and commit on exit",
		UsageText: fmt.Sprintf("%s chroot -s SNAPSHOT [COMMAND...]", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewRunCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a command inside a staged snapshot and commit",
		UsageText: fmt.Sprintf("%s run -s SNAPSHOT COMMAND...", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewUnlockCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "unlock",
		Aliases:   []string{"ul"},
		Usage:     "Force-remove a snapshot's staging copy after an interrupted operation",
		UsageText: fmt.Sprintf("%s unlock -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}
