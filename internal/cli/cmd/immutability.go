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

func NewImmutabilityEnableCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "immen",
		Usage:     "Make a snapshot immutable",
		UsageText: fmt.Sprintf("%s immen -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewImmutabilityDisableCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "immdis",
		Usage:     "Make a snapshot mutable",
		UsageText: fmt.Sprintf("%s immdis -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewEditCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit a snapshot's configuration in an editor",
		UsageText: fmt.Sprintf("%s edit -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}
