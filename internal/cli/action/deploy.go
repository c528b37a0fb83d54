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
	"github.com/ochibani/ash/pkg/deploy"
	"github.com/ochibani/ash/pkg/descstore"
	"github.com/ochibani/ash/pkg/lifecycle"
	"github.com/ochibani/ash/pkg/paths"
)

func Deploy(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}

	id := paths.ID(cmd.SnapshotArgs.Snapshot)
	if err := deploy.New(s).Deploy(id); err != nil {
		return err
	}
	s.Logger().Info("Snapshot %d will be root at next boot", int(id))
	return nil
}

func Rollback(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}

	next, err := lifecycle.New(s).FindNew()
	if err != nil {
		return err
	}
	desc := descstore.New(s)

	id, err := deploy.New(s).Rollback(
		func() paths.ID { return next },
		func(i paths.ID) error {
			if aerr := f.AppendBase(i); aerr != nil {
				return aerr
			}
			return f.Save(s)
		},
		desc.Write,
	)
	if err != nil {
		return err
	}
	s.Logger().Info("Rolled back into snapshot %d", int(id))
	return nil
}

func Hollow(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}

	id := paths.ID(cmd.SnapshotArgs.Snapshot)
	return lifecycle.New(s).Hollow(id, func(stagingRoot string) bool {
		return confirm(fmt.Sprintf("snapshot %d is hollowed at %s with the running root bound into it; commit and redeploy?", int(id), stagingRoot))
	})
}
