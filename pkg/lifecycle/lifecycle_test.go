/*
Copyright © 2022-2025 SUSE LLC
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
package lifecycle_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ochibani/ash/pkg/descstore"
	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/lifecycle"
	"github.com/ochibani/ash/pkg/log"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	sysmock "github.com/ochibani/ash/pkg/sys/mock"
	"github.com/ochibani/ash/pkg/sys/vfs"
	"github.com/ochibani/ash/pkg/tree"
)

func TestLifecycleSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lifecycle test suite")
}

var _ = Describe("Manager", Label("lifecycle"), func() {
	var runner *sysmock.Runner
	var fs vfs.FS
	var s *sys.System
	var cleanup func()
	var m *lifecycle.Manager
	var f *tree.Forest

	mkTriple := func(id paths.ID) {
		t := paths.ForID(id)
		for _, p := range []string{t.Rootfs, t.Boot, t.Etc} {
			Expect(vfs.MkdirAll(fs, p, vfs.DirPerm)).To(Succeed())
		}
	}

	BeforeEach(func() {
		var err error
		runner = sysmock.NewRunner()
		fs, cleanup, err = sysmock.TestFS(nil)
		Expect(err).ToNot(HaveOccurred())
		s, err = sys.NewSystem(
			sys.WithFS(fs), sys.WithRunner(runner),
			sys.WithMounter(sysmock.NewMounter()),
			sys.WithLogger(log.New(log.WithDiscardAll())),
		)
		Expect(err).NotTo(HaveOccurred())

		// The mock runner doesn't actually snapshot, so mirror btrfs'
		// effect by creating the destination subvolume directory.
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			if cmd == "btrfs" && len(args) >= 2 && args[0] == "subvolume" && args[1] == "snapshot" {
				Expect(vfs.MkdirAll(fs, args[len(args)-1], vfs.DirPerm)).To(Succeed())
			}
			return []byte{}, nil
		}

		mkTriple(tree.Root)
		Expect(vfs.MkdirAll(fs, paths.Root+"/ash", vfs.DirPerm)).To(Succeed())
		m = lifecycle.New(s)
		f = tree.New()
	})
	AfterEach(func() {
		cleanup()
	})

	Describe("FindNew", func() {
		It("returns 1 on a fresh system", func() {
			id, err := m.FindNew()
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(1)))
		})

		It("skips ids used by any namespace, including staging copies", func() {
			mkTriple(paths.ID(1))
			Expect(vfs.MkdirAll(fs, paths.ForStaging(paths.ID(2)).Rootfs, vfs.DirPerm)).To(Succeed())
			Expect(vfs.MkdirAll(fs, paths.ForID(paths.ID(3)).Boot, vfs.DirPerm)).To(Succeed())

			id, err := m.FindNew()
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(4)))
		})

		It("ignores the deploy slots", func() {
			slot := paths.ForSlot(paths.DeploySlot)
			Expect(vfs.MkdirAll(fs, slot.Rootfs, vfs.DirPerm)).To(Succeed())

			id, err := m.FindNew()
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(1)))
		})
	})

	Describe("NewSnapshot", func() {
		It("creates id 1 from base, adds it to the forest and describes it", func() {
			id, err := m.NewSnapshot(f, "first")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(1)))

			p, ok := f.Parent(id)
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal(tree.Root))

			desc, err := descstore.New(s).Read(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(desc).To(Equal("first"))

			Expect(runner.IncludesCmds([][]string{
				{"btrfs", "subvolume", "snapshot", "-r"},
			})).To(Succeed())

			ok, err = vfs.Exists(fs, paths.FsTree)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})

	Describe("clone operations", func() {
		BeforeEach(func() {
			_, err := m.NewSnapshot(f, "first")
			Expect(err).NotTo(HaveOccurred())
		})

		It("clone_under adds the clone as a child of the named parent", func() {
			id, err := m.CloneUnder(f, paths.ID(1), tree.Root)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(2)))

			p, ok := f.Parent(id)
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal(paths.ID(1)))
		})

		It("clone_branch adds the clone as a sibling", func() {
			_, err := m.CloneUnder(f, paths.ID(1), tree.Root)
			Expect(err).NotTo(HaveOccurred())

			id, err := m.CloneBranch(f, paths.ID(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(paths.ID(3)))

			p, ok := f.Parent(id)
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal(paths.ID(1)))
		})

		It("clone_as_tree adds the clone under the root", func() {
			id, err := m.CloneAsTree(f, paths.ID(1), "copy")
			Expect(err).NotTo(HaveOccurred())

			p, ok := f.Parent(id)
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal(tree.Root))
		})

		It("clone_recursive clones the sub-forest shape", func() {
			// 1 -> {2 -> 4, 3}
			_, err := m.CloneUnder(f, paths.ID(1), tree.Root)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.CloneUnder(f, paths.ID(1), tree.Root)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.CloneUnder(f, paths.ID(2), tree.Root)
			Expect(err).NotTo(HaveOccurred())

			top, err := m.CloneRecursive(f, paths.ID(1))
			Expect(err).NotTo(HaveOccurred())

			// The copy is a sibling of 1 with the same number of
			// descendants.
			p, ok := f.Parent(top)
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal(tree.Root))
			Expect(f.Children(top)).To(HaveLen(len(f.Children(paths.ID(1)))))
		})

		It("refuses to clone a locked snapshot", func() {
			Expect(vfs.MkdirAll(fs, paths.ForStaging(paths.ID(1)).Rootfs, vfs.DirPerm)).To(Succeed())

			_, err := m.CloneBranch(f, paths.ID(1))
			Expect(errorkind.Is(err, errorkind.SnapshotLocked)).To(BeTrue())
		})

		It("refuses to clone a missing snapshot", func() {
			_, err := m.CloneBranch(f, paths.ID(42))
			Expect(errorkind.Is(err, errorkind.SnapshotMissing)).To(BeTrue())
		})
	})

	Describe("DeleteNode", func() {
		BeforeEach(func() {
			_, err := m.NewSnapshot(f, "first")
			Expect(err).NotTo(HaveOccurred())
			_, err = m.CloneUnder(f, paths.ID(1), tree.Root)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses the base snapshot", func() {
			err := m.DeleteNode(f, []paths.ID{tree.Root}, true, nil)
			Expect(errorkind.Is(err, errorkind.BaseImmutable)).To(BeTrue())
		})

		It("refuses the currently booted snapshot", func() {
			Expect(vfs.MkdirAll(fs, "/proc", vfs.DirPerm)).To(Succeed())
			Expect(fs.WriteFile("/proc/mounts", []byte(
				"/dev/sda3 / btrfs rw,subvol=/@/rootfs/snapshot-deploy 0 0\n",
			), vfs.FilePerm)).To(Succeed())
			slotRootfs := paths.ForSlot(paths.DeploySlot).Rootfs
			Expect(vfs.MkdirAll(fs, slotRootfs+"/usr/share/ash", vfs.DirPerm)).To(Succeed())
			Expect(fs.WriteFile(paths.Snap(slotRootfs), []byte("1\n"), vfs.FilePerm)).To(Succeed())

			err := m.DeleteNode(f, []paths.ID{paths.ID(1)}, true, nil)
			Expect(errorkind.Is(err, errorkind.DeployedProtected)).To(BeTrue())
		})

		It("deletes the id and its descendants, descriptions included", func() {
			Expect(m.DeleteNode(f, []paths.ID{paths.ID(1)}, true, nil)).To(Succeed())

			Expect(f.Has(paths.ID(1))).To(BeFalse())
			Expect(f.Has(paths.ID(2))).To(BeFalse())

			desc, err := descstore.New(s).Read(paths.ID(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(desc).To(BeEmpty())
		})

		It("skips an id the confirmation declines", func() {
			Expect(m.DeleteNode(f, []paths.ID{paths.ID(1)}, false, func(paths.ID) bool { return false })).To(Succeed())
			Expect(f.Has(paths.ID(1))).To(BeTrue())
		})
	})

	Describe("immutability", func() {
		BeforeEach(func() {
			_, err := m.NewSnapshot(f, "first")
			Expect(err).NotTo(HaveOccurred())
		})

		It("round-trips the marker and the description suffix", func() {
			Expect(m.ImmutabilityDisable(paths.ID(1))).To(Succeed())

			mutable, err := m.IsMutable(paths.ID(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(mutable).To(BeTrue())

			desc, err := descstore.New(s).Read(paths.ID(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(desc).To(HaveSuffix(" MUTABLE"))

			Expect(m.ImmutabilityEnable(paths.ID(1))).To(Succeed())

			mutable, err = m.IsMutable(paths.ID(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(mutable).To(BeFalse())

			desc, err = descstore.New(s).Read(paths.ID(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(desc).To(Equal("first"))
		})

		It("refuses the base snapshot", func() {
			err := m.ImmutabilityDisable(tree.Root)
			Expect(errorkind.Is(err, errorkind.BaseImmutable)).To(BeTrue())
		})
	})

	Describe("Unlock", func() {
		It("removes a leftover staging triple", func() {
			staging := paths.ForStaging(paths.ID(1))
			Expect(vfs.MkdirAll(fs, staging.Rootfs, vfs.DirPerm)).To(Succeed())

			Expect(m.Unlock(paths.ID(1))).To(Succeed())
			Expect(runner.IncludesCmds([][]string{
				{"btrfs", "subvolume", "delete", "-c", staging.Rootfs},
			})).To(Succeed())
		})
	})
})
