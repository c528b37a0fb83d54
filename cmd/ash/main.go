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

package main

import (
	"log"
	"os"

	"github.com/ochibani/ash/internal/cli/action"
	"github.com/ochibani/ash/internal/cli/app"
	"github.com/ochibani/ash/internal/cli/cmd"
	"github.com/ochibani/ash/internal/cli/version"
)

func main() {
	appName := app.Name()
	application := app.New(
		cmd.Usage,
		cmd.GlobalFlags(),
		cmd.Setup,
		cmd.Teardown,
		cmd.NewNewCommand(appName, action.New),
		cmd.NewBranchCommand(appName, action.Branch),
		cmd.NewCloneCommand(appName, action.Clone),
		cmd.NewCloneBranchCommand(appName, action.CloneBranch),
		cmd.NewCloneTreeCommand(appName, action.CloneTree),
		cmd.NewCloneUnderCommand(appName, action.CloneUnder),
		cmd.NewDeleteCommand(appName, action.Delete),
		cmd.NewDescCommand(appName, action.Desc),
		cmd.NewDeployCommand(appName, action.Deploy),
		cmd.NewRollbackCommand(appName, action.Rollback),
		cmd.NewHollowCommand(appName, action.Hollow),
		cmd.NewChrootCommand(appName, action.Chroot),
		cmd.NewRunCommand(appName, action.Run),
		cmd.NewUnlockCommand(appName, action.Unlock),
		cmd.NewInstallCommand(appName, action.Install),
		cmd.NewUninstallCommand(appName, action.Uninstall),
		cmd.NewUpgradeCommand(appName, action.Upgrade),
		cmd.NewRefreshCommand(appName, action.Refresh),
		cmd.NewSyncCommand(appName, action.Sync),
		cmd.NewTreeCommand(appName, action.Tree),
		cmd.NewListCommand(appName, action.List),
		cmd.NewDiffCommand(appName, action.Diff),
		cmd.NewWhichSnapCommand(appName, action.WhichSnap),
		cmd.NewWhichTmpCommand(appName, action.WhichTmp),
		cmd.NewCurrentCommand(appName, action.Current),
		cmd.NewTmpCommand(appName, action.Tmp),
		cmd.NewImmutabilityEnableCommand(appName, action.ImmutabilityEnable),
		cmd.NewImmutabilityDisableCommand(appName, action.ImmutabilityDisable),
		cmd.NewEditCommand(appName, action.Edit),
		version.NewVersionCommand(appName))

	if err := application.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
