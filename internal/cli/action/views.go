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

	"github.com/ochibani/ash/pkg/views"
)

func Tree(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}
	fmt.Print(views.ShowFsTree(f))
	return nil
}

func List(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	names, err := views.New(s).ListSubvolumes("snapshot-")
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// Diff prints the package set difference between two snapshots. With a
// single argument the second defaults to the currently booted snapshot.
func Diff(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	ids, err := snapshotIDs(ctx)
	if err != nil {
		return err
	}

	v := views.New(s)
	switch len(ids) {
	case 2:
	case 1:
		current, cerr := v.Current()
		if cerr != nil {
			return cerr
		}
		ids = append(ids, current)
	default:
		return fmt.Errorf("diff takes one or two snapshot ids")
	}

	added, removed, err := v.SnapshotDiff(ids[0], ids[1])
	if err != nil {
		return err
	}
	for _, name := range added {
		fmt.Printf("+ %s\n", name)
	}
	for _, name := range removed {
		fmt.Printf("- %s\n", name)
	}
	return nil
}

func WhichSnap(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	f, err := loadForest(s)
	if err != nil {
		return err
	}
	if ctx.Args().Len() == 0 {
		return fmt.Errorf("no package names given")
	}

	v := views.New(s)
	for _, pkg := range ctx.Args().Slice() {
		matches, err := v.WhichSnap(f, pkg)
		if err != nil {
			return err
		}
		for _, id := range matches {
			fmt.Printf("%s: %d\n", pkg, int(id))
		}
	}
	return nil
}

func WhichTmp(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	slot, err := views.New(s).WhichTmp()
	if err != nil {
		return err
	}
	fmt.Println(slot)
	return nil
}

func Current(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	id, err := views.New(s).Current()
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}

func Tmp(ctx *cli.Context) error {
	s, err := system(ctx)
	if err != nil {
		return err
	}
	id, err := views.New(s).Tmp()
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", int(id))
	return nil
}
