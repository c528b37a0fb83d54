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

type SyncFlags struct {
	Tree         int
	ForceOffline bool
	Live         bool
}

var SyncArgs SyncFlags

func NewSyncCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Aliases:   []string{"sy"},
		Usage:     "Propagate a snapshot's package state to all of its descendants",
		UsageText: fmt.Sprintf("%s sync -t TREE [--force-offline] [--live]", appName),
		Action:    action,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "treename",
				Aliases:     []string{"t"},
				Usage:       "Snapshot id the sync starts from",
				Destination: &SyncArgs.Tree,
			},
			&cli.BoolFlag{
				Name:        "force-offline",
				Usage:       "Skip the package database refresh before syncing",
				Destination: &SyncArgs.ForceOffline,
			},
			&cli.BoolFlag{
				Name:        "live",
				Usage:       "Also sync the currently booted deployment in place",
				Destination: &SyncArgs.Live,
			},
		},
	}
}
