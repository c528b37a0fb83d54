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

type PackageFlags struct {
	Packages    cli.StringSlice
	Profile     string
	UserProfile string
}

var PackageArgs PackageFlags

func packagesFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:        "package",
		Aliases:     []string{"p"},
		Usage:       "Package name, repeatable",
		Destination: &PackageArgs.Packages,
	}
}

func NewInstallCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "install",
		Aliases:   []string{"in"},
		Usage:     "Install packages or a profile into a snapshot",
		UsageText: fmt.Sprintf("%s install -s SNAPSHOT (--package PKG... | --profile URL | --user-profile URL)", appName),
		Action:    action,
		Flags: []cli.Flag{
			snapshotFlag(),
			packagesFlag(),
			&cli.StringFlag{
				Name:        "profile",
				Usage:       "URL of a profile to download and install",
				Destination: &PackageArgs.Profile,
			},
			&cli.StringFlag{
				Name:        "user-profile",
				Usage:       "URL of a user profile to download and install",
				Destination: &PackageArgs.UserProfile,
			},
		},
	}
}

func NewUninstallCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Aliases:   []string{"unin"},
		Usage:     "Remove packages from a snapshot",
		UsageText: fmt.Sprintf("%s uninstall -s SNAPSHOT --package PKG...", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag(), packagesFlag()},
	}
}

func NewUpgradeCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "upgrade",
		Aliases:   []string{"up"},
		Usage:     "Upgrade every package in a snapshot",
		UsageText: fmt.Sprintf("%s upgrade -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}

func NewRefreshCommand(appName string, action func(*cli.Context) error) *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Aliases:   []string{"ref"},
		Usage:     "Refresh package databases inside a snapshot",
		UsageText: fmt.Sprintf("%s refresh -s SNAPSHOT", appName),
		Action:    action,
		Flags:     []cli.Flag{snapshotFlag()},
	}
}
