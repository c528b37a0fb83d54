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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	"github.com/ochibani/ash/pkg/tree"
)

// system pulls the *sys.System the Setup hook stashed in the app metadata.
func system(ctx *cli.Context) (*sys.System, error) {
	if ctx.App.Metadata == nil || ctx.App.Metadata["system"] == nil {
		return nil, fmt.Errorf("error setting up initial configuration")
	}
	return ctx.App.Metadata["system"].(*sys.System), nil
}

// loadForest reads the persisted snapshot forest.
func loadForest(s *sys.System) (*tree.Forest, error) {
	return tree.Load(s)
}

// confirm asks a yes/no question on the controlling terminal, defaulting
// to no.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// snapshotIDs parses every positional argument as a snapshot id.
func snapshotIDs(ctx *cli.Context) ([]paths.ID, error) {
	var ids []paths.ID
	for _, arg := range ctx.Args().Slice() {
		var n int
		if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid snapshot id %q", arg)
		}
		ids = append(ids, paths.ID(n))
	}
	return ids, nil
}
