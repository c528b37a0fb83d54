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

func NewTreeCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Aliases:   []string{"t"},
		Usage:     "Print the snapshot tree",
		UsageText: fmt.Sprintf("%s tree", appName),
		Action:    action,
	}
}

func NewListCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List snapshot subvolumes",
		UsageText: fmt.Sprintf("%s list", appName),
		Action:    action,
	}
}

func NewDiffCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Diff the package sets of two snapshots",
		UsageText: fmt.Sprintf("%s diff SNAPSHOT [SNAPSHOT]", appName),
		Action:    action,
	}
}

func NewWhichSnapCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "whichsnap",
		Aliases:   []string{"ws"},
		Usage:     "List the snapshots a package is installed in",
		UsageText: fmt.Sprintf("%s whichsnap PACKAGE...", appName),
		Action:    action,
	}
}

func NewWhichTmpCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "whichtmp",
		Aliases:   []string{"wt"},
		Usage:     "Print the next-boot deployment slot",
		UsageText: fmt.Sprintf("%s whichtmp", appName),
		Action:    action,
	}
}

func NewCurrentCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "current",
		Aliases:   []string{"cur"},
		Usage:     "Print the snapshot id materialized in the booted deployment",
		UsageText: fmt.Sprintf("%s current", appName),
		Action:    action,
	}
}

func NewTmpCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "tmp",
		Usage:     "Print the snapshot id staged for next boot",
		UsageText: fmt.Sprintf("%s tmp", appName),
		Action:    action,
	}
}
