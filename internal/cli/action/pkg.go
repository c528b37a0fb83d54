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
	"github.com/ochibani/ash/pkg/configstore"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/pkgmgr"
	"github.com/ochibani/ash/pkg/profile"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/upstate"
)

// stagedRunner adapts an active staging session to pkgmgr.Runner.
type stagedRunner struct {
	p  *staging.Protocol
	id paths.ID
}

func (r stagedRunner) Run(cmd string, args ...string) ([]byte, error) {
	return r.p.Run(r.id, cmd, args...)
}

func Install(ctx *cli.Context) error {
	pkgs := cmd.PackageArgs.Packages.Value()
	url := cmd.PackageArgs.Profile
	userURL := cmd.PackageArgs.UserProfile

	given := 0
	for _, set := range []bool{len(pkgs) > 0, url != "", userURL != ""} {
		if set {
			given++
		}
	}
	if given != 1 {
		return fmt.Errorf("exactly one of --package, --profile or --user-profile must be given")
	}

	if url == "" {
		url = userURL
	}

	return withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		aur, err := snapshotAUR(s, id)
		if err != nil {
			return err
		}

		if url != "" {
			desc, err := profile.New().Fetch(ctx.Context, url)
			if err != nil {
				return err
			}
			pkgs = desc.Packages
			aur = aur || desc.AUR
		}

		return pkgmgr.Install(stagedRunner{p, id}, aur, pkgs...)
	})
}

func Uninstall(ctx *cli.Context) error {
	pkgs := cmd.PackageArgs.Packages.Value()
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages given")
	}
	return withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		return pkgmgr.Remove(stagedRunner{p, id}, pkgs...)
	})
}

func Upgrade(ctx *cli.Context) error {
	err := withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		aur, aerr := snapshotAUR(s, id)
		if aerr != nil {
			return aerr
		}
		return pkgmgr.Upgrade(stagedRunner{p, id}, aur)
	})
	return recordUpstate(ctx, err)
}

func Refresh(ctx *cli.Context) error {
	err := withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		return pkgmgr.Refresh(stagedRunner{p, id})
	})
	return recordUpstate(ctx, err)
}

// snapshotAUR reads the aur flag from the staged snapshot's config.
func snapshotAUR(s *sys.System, id paths.ID) (bool, error) {
	cfg, err := configstore.Load(s, paths.Config(paths.ForStaging(id).Etc))
	if err != nil {
		return false, err
	}
	return cfg.AUR, nil
}

// recordUpstate writes the update-status log around a package operation's
// outcome, preserving the operation's own error.
func recordUpstate(ctx *cli.Context, opErr error) error {
	s, err := system(ctx)
	if err != nil {
		return opErr
	}
	if werr := upstate.New(s).Record(opErr == nil); werr != nil {
		s.Logger().Warn("Could not record update state: %v", werr)
	}
	return opErr
}
