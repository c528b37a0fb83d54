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
package treesync_test

import (
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ochibani/ash/pkg/log"
	"github.com/ochibani/ash/pkg/paths"
	"github.com/ochibani/ash/pkg/pkgdb"
	"github.com/ochibani/ash/pkg/sys"
	sysmock "github.com/ochibani/ash/pkg/sys/mock"
	"github.com/ochibani/ash/pkg/sys/vfs"
	"github.com/ochibani/ash/pkg/tree"
	"github.com/ochibani/ash/pkg/treesync"
)

func TestTreesyncSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Treesync test suite")
}

var _ = Describe("SyncTreeHelper", Label("treesync"), func() {
	var fs vfs.FS
	var s *sys.System
	var cleanup func()
	var sy *treesync.Syncer

	BeforeEach(func() {
		var err error
		fs, cleanup, err = sysmock.TestFS(nil)
		Expect(err).NotTo(HaveOccurred())
		// No WithRunner override: reflink's "cp" invocations run for
		// real against TestFS's real temp-dir backing, the same way
		// pkg/rsync's tests exercise the real rsync binary.
		s, err = sys.NewSystem(sys.WithFS(fs), sys.WithLogger(log.New(log.WithDiscardAll())))
		Expect(err).NotTo(HaveOccurred())

		sy = treesync.New(s, tree.New())

		src := paths.ForID(paths.ID(1)).Rootfs
		dst := paths.ForID(paths.ID(2)).Rootfs

		for _, entry := range []string{"a-1-1", "b-1-1"} {
			Expect(vfs.MkdirAll(fs, filepath.Join(src, pkgdb.Dir, entry), vfs.DirPerm)).To(Succeed())
		}
		for _, entry := range []string{"a-2-1", "c-1-1"} {
			Expect(vfs.MkdirAll(fs, filepath.Join(dst, pkgdb.Dir, entry), vfs.DirPerm)).To(Succeed())
		}
		Expect(vfs.MkdirAll(fs, filepath.Join(src, "etc"), vfs.DirPerm)).To(Succeed())
		Expect(vfs.MkdirAll(fs, filepath.Join(dst, "etc"), vfs.DirPerm)).To(Succeed())
		Expect(fs.WriteFile(filepath.Join(src, "etc/hostname"), []byte("one"), vfs.FilePerm)).To(Succeed())
		Expect(fs.WriteFile(filepath.Join(dst, "etc/hostname"), []byte("two"), vfs.FilePerm)).To(Succeed())
	})
	AfterEach(func() {
		cleanup()
	})

	It("leaves dst a superset of src's and dst's original package sets", func() {
		dst := paths.ForID(paths.ID(2)).Rootfs

		Expect(sy.SyncTreeHelper(paths.ID(1), dst)).To(Succeed())

		names, err := pkgdb.Names(s, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(ConsistOf("a", "b", "c"))

		entries, err := pkgdb.Entries(s, dst)
		Expect(err).NotTo(HaveOccurred())
		// "a" existed in both: dst's own db entry is retained, not src's.
		Expect(entries["a"]).To(Equal("a-2-1"))
		// "b" is new to dst: its db entry came from src.
		Expect(entries["b"]).To(Equal("b-1-1"))
		// "c" was dst-local and absent from src: untouched.
		Expect(entries["c"]).To(Equal("c-1-1"))
	})

	It("does not clobber a file dst already has", func() {
		dst := paths.ForID(paths.ID(2)).Rootfs

		Expect(sy.SyncTreeHelper(paths.ID(1), dst)).To(Succeed())

		data, err := fs.ReadFile(filepath.Join(dst, "etc/hostname"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("two"))
	})
})

var _ = Describe("SyncTree", Label("treesync"), func() {
	var fs vfs.FS
	var s *sys.System
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = sysmock.TestFS(nil)
		Expect(err).NotTo(HaveOccurred())
		s, err = sys.NewSystem(
			sys.WithFS(fs), sys.WithRunner(sysmock.NewRunner()),
			sys.WithLogger(log.New(log.WithDiscardAll())),
		)
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() {
		cleanup()
	})

	It("refuses to sync a locked child", func() {
		f := tree.New()
		Expect(f.AppendBase(paths.ID(1))).To(Succeed())
		Expect(f.AddUnderParent(paths.ID(1), paths.ID(2))).To(Succeed())
		Expect(vfs.MkdirAll(fs, paths.ForStaging(paths.ID(2)).Rootfs, vfs.DirPerm)).To(Succeed())

		sy := treesync.New(s, f)
		err := sy.SyncTree(paths.ID(1), true, false, nil)
		Expect(err).To(HaveOccurred())
	})

	It("skips the external update collaborator when forceOffline is set", func() {
		f := tree.New()
		called := false
		sy := treesync.New(s, f)

		Expect(sy.SyncTree(paths.ID(0), true, false, func() error {
			called = true
			return nil
		})).To(Succeed())
		Expect(called).To(BeFalse())
	})
})
