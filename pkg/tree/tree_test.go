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
package tree_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/log"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/sys"
	sysmock "github.com/ochibani/ash/pkg/sys/mock"
	"github.com/ochibani/ash/pkg/sys/vfs"
	"github.com/ochibani/ash/pkg/tree"
)

func TestTreeSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tree test suite")
}

var _ = Describe("Forest", Label("tree"), func() {
	var fs vfs.FS
	var s *sys.System
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = sysmock.TestFS(nil)
		Expect(err).NotTo(HaveOccurred())
		s, err = sys.NewSystem(sys.WithFS(fs), sys.WithLogger(log.New(log.WithDiscardAll())))
		Expect(err).NotTo(HaveOccurred())
		Expect(vfs.MkdirAll(fs, paths.Root+"/ash", vfs.DirPerm)).To(Succeed())
	})
	AfterEach(func() {
		cleanup()
	})

	It("loads an absent fstree as an empty forest", func() {
		f, err := tree.Load(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.IDs()).To(Equal([]paths.ID{tree.Root}))
	})

	It("round-trips through Save and Load", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(2))).To(Succeed())
		Expect(f.AddToLevel(paths.ID(2), paths.ID(3))).To(Succeed())
		Expect(f.Save(s)).To(Succeed())

		loaded, err := tree.Load(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.IDs()).To(Equal(f.IDs()))

		p, ok := loaded.Parent(paths.ID(3))
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal(paths.ID(1)))
	})

	It("rejects a duplicate id", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		err := f.AppendBase(paths.ID(1))
		Expect(errorkind.Is(err, errorkind.TreeInvariantError)).To(BeTrue())
	})

	It("rejects an edge whose parent is not in the forest", func() {
		f := tree.New()
		err := f.AddUnderParent(paths.ID(7), paths.ID(8))
		Expect(errorkind.Is(err, errorkind.TreeInvariantError)).To(BeTrue())
	})

	It("rejects giving the root a parent", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		err := f.AddUnderParent(paths.ID(1), tree.Root)
		Expect(errorkind.Is(err, errorkind.TreeInvariantError)).To(BeTrue())
	})

	It("fails loading a malformed fstree", func() {
		Expect(fs.WriteFile(paths.FsTree, []byte("0 1\nbogus\n"), vfs.FilePerm)).To(Succeed())
		_, err := tree.Load(s)
		Expect(errorkind.Is(err, errorkind.TreeInvariantError)).To(BeTrue())
	})

	It("returns transitive descendants in pre-order", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(2))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(2), paths.ID(4))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(3))).To(Succeed())

		Expect(f.Children(paths.ID(1))).To(Equal([]paths.ID{2, 4, 3}))
	})

	It("flattens edges for recursive sync in pre-order", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(2))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(2), paths.ID(3))).To(Succeed())

		Expect(f.Recurse(paths.ID(1))).To(Equal([]tree.Pair{
			{Parent: 1, Child: 2},
			{Parent: 2, Child: 3},
		}))
	})

	It("removes a leaf and forgets it on reload", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(2))).To(Succeed())

		f.Remove(paths.ID(2))
		Expect(f.Has(paths.ID(2))).To(BeFalse())
		Expect(f.Save(s)).To(Succeed())

		loaded, err := tree.Load(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Has(paths.ID(2))).To(BeFalse())
		Expect(loaded.Has(paths.ID(1))).To(BeTrue())
	})
})
