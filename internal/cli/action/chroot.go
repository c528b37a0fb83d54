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
	"os"
	"os/exec"

	"github.com/urfave/cli/v2"

	"github.com/ochibani/ash/internal/cli/cmd"
	"github.com/ochibani/ash/pkg/lifecycle"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/staging"
	"github.com/ochibani/ash/pkg/sys"
)

// Chroot stages a snapshot and opens an interactive shell (or the given
// command) inside it, committing the staging copy when the shell exits
// cleanly and discarding it otherwise.
func Chroot(ctx *cli.Context) error {
	command := ctx.Args().Slice()
	if len(command) == 0 {
		command = []string{"/bin/bash"}
	}
	return withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		sess, err := p.Session(id)
		if err != nil {
			return err
		}
		return sess.RunCallback(func() error {
			return runInteractive(command[0], command[1:]...)
		})
	})
}

// Run stages a snapshot, runs the given command inside it and commits.
func Run(ctx *cli.Context) error {
	command := ctx.Args().Slice()
	if len(command) == 0 {
		return cli.Exit("no command given", 1)
	}
	return withStaged(ctx, func(s *sys.System, p *staging.Protocol, id paths.ID) error {
		out, err := p.Run(id, command[0], command[1:]...)
		os.Stdout.Write(out)
		return err
	})
}

func Unlock(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	return lifecycle.New(s).Unlock(paths.ID(cmd.SnapshotArgs.Snapshot))
}

// withStaged wraps work in the staging protocol's three-phase commit:
// prepare, work, then post_transactions on success or chr_delete on error.
func withStaged(ctx *cli.Context, work func(*sys.System, *staging.Protocol, paths.ID) error) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	id := paths.ID(cmd.SnapshotArgs.Snapshot)
	p := staging.New(s)

	if _, err := p.Prepare(id); err != nil {
		return err
	}
	if err := work(s, p, id); err != nil {
		_ = p.ChrDelete(id)
		return err
	}
	return p.PostTransactions(id)
}

// runInteractive executes a command wired to the controlling terminal,
// unlike the buffered sys.Runner. Used for shells and editors.
func runInteractive(command string, args ...string) error {
	c := exec.Command(command, args...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
