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

func NewDeployCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Aliases:   []string{"dep"},
		Usage:     "Promote a snapshot to become root at next boot",
		UsageText: fmt.Sprintf("%s deploy -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewRollbackCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "rollback",
		Aliases:   []string{"rb"},
		Usage:     "Clone the running deployment as a new snapshot and deploy it",
		UsageText: fmt.Sprintf("%s rollback", appName),
		Action:    action,
	}
}

func NewHollowCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "hollow",
		Usage:     "Stage a snapshot with the running root bound into it for deep modification, then redeploy",
		UsageText: fmt.Sprintf("%s hollow -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}
