package filelist

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/colabsync/colabsync/pkg/resource"
)

// verifyPartition verifies that a diff partitions the union of two lists.
func verifyPartition(t *testing.T, base, target *FileList, diff Diff) {
	t.Helper()
	seen := make(map[string]int)
	for _, set := range [][]string{diff.Added(), diff.Removed(), diff.Altered(), diff.Unaltered()} {
		for _, path := range set {
			seen[path]++
		}
	}
	union := make(map[string]bool)
	for _, path := range append(base.Paths(), target.Paths()...) {
		union[path] = true
	}
	if len(seen) != len(union) {
		t.Error("diff does not cover union of lists")
	}
	for path, count := range seen {
		if count != 1 {
			t.Error("path classified multiple times:", path)
		}
		if !union[path] {
			t.Error("diff contains unknown path:", path)
		}
	}
}

// TestComparePartition tests that diffs partition path unions.
func TestComparePartition(t *testing.T) {
	base := mustFromEntries(t,
		Entry{Path: "a/"}, file("a/1", 1), file("a/2", 2), file("b", 3), Entry{Path: "c/"}, Entry{Path: "n"},
	)
	target := mustFromEntries(t,
		Entry{Path: "a/"}, file("a/1", 1), file("a/2", 9), file("d", 4), Entry{Path: "c/"}, Entry{Path: "n"},
	)
	diff := Compare(base, target)
	verifyPartition(t, base, target, diff)
	if d := cmp.Diff([]string{"d"}, diff.Added()); d != "" {
		t.Error("added mismatch (-want +got):\n", d)
	}
	if d := cmp.Diff([]string{"b"}, diff.Removed()); d != "" {
		t.Error("removed mismatch (-want +got):\n", d)
	}
	if d := cmp.Diff([]string{"a/2"}, diff.Altered()); d != "" {
		t.Error("altered mismatch (-want +got):\n", d)
	}
	if d := cmp.Diff([]string{"a/", "a/1", "c/", "n"}, diff.Unaltered()); d != "" {
		t.Error("unaltered mismatch (-want +got):\n", d)
	}
}

// TestCompareSelf tests that a list compared with itself is unaltered.
func TestCompareSelf(t *testing.T) {
	list := mustFromEntries(t, Entry{Path: "a/"}, file("a/f", 1), Entry{Path: "g"})
	diff := Compare(list, list)
	if len(diff.Added()) != 0 || len(diff.Removed()) != 0 || len(diff.Altered()) != 0 {
		t.Error("self-diff contains changes:", diff)
	}
	if d := cmp.Diff(list.Paths(), diff.Unaltered()); d != "" {
		t.Error("unaltered mismatch (-want +got):\n", d)
	}
	if !diff.Empty() {
		t.Error("self-diff not empty")
	}
}

// TestCompareNil tests that comparisons against nil lists are empty.
func TestCompareNil(t *testing.T) {
	list := mustFromEntries(t, file("f", 1))
	for _, diff := range []Diff{Compare(nil, list), Compare(list, nil), Compare(nil, nil)} {
		if len(diff.Added())+len(diff.Removed())+len(diff.Altered())+len(diff.Unaltered()) != 0 {
			t.Error("diff against nil list is non-empty")
		}
	}
}

// TestCompareMixedChecksums tests that a checksum present on only one side
// marks a file as altered.
func TestCompareMixedChecksums(t *testing.T) {
	base := mustFromEntries(t, Entry{Path: "f"}, file("g", 1))
	target := mustFromEntries(t, file("f", 1), Entry{Path: "g"})
	if d := cmp.Diff([]string{"f", "g"}, Compare(base, target).Altered()); d != "" {
		t.Error("altered mismatch (-want +got):\n", d)
	}
}

// TestDeletionSafety tests that content changes beneath a shared directory
// never cause deletions and that directories are never altered.
func TestDeletionSafety(t *testing.T) {
	base := mustFromEntries(t, Entry{Path: "/a/"}, file("/a/f.txt", 1))
	target := mustFromEntries(t, Entry{Path: "/a/"}, file("/a/f.txt", 2))
	diff := Compare(base, target)
	if len(diff.Removed()) != 0 {
		t.Error("removed set not empty:", diff.Removed())
	}
	if d := cmp.Diff([]string{"a/f.txt"}, diff.Altered()); d != "" {
		t.Error("altered mismatch (-want +got):\n", d)
	}
}

// TestFolderBeforeDelete tests the interaction of additions, removals, and
// deletion filtering within a shared directory.
func TestFolderBeforeDelete(t *testing.T) {
	base := mustFromEntries(t, Entry{Path: "/a/"}, file("/a/old.txt", 1))
	target := mustFromEntries(t, Entry{Path: "/a/"}, file("/a/new.txt", 2))
	diff := Compare(base, target)
	if d := cmp.Diff([]string{"a/new.txt"}, diff.Added()); d != "" {
		t.Error("added mismatch (-want +got):\n", d)
	}
	if d := cmp.Diff([]string{"a/old.txt"}, diff.Removed()); d != "" {
		t.Error("removed mismatch (-want +got):\n", d)
	}
	filtered, err := Apply(diff, FilterDeletions())
	if err != nil {
		t.Fatal("unable to filter deletions:", err)
	}
	for _, path := range filtered.Removed() {
		if path == "a/" {
			t.Error("shared directory scheduled for deletion")
		}
	}
	if d := cmp.Diff([]string{"a/old.txt"}, filtered.Removed()); d != "" {
		t.Error("filtered removed mismatch (-want +got):\n", d)
	}
}

// TestFilterDeletionsProtectsAncestors tests that directories with live
// contents are never deleted.
func TestFilterDeletionsProtectsAncestors(t *testing.T) {
	base := mustFromEntries(t, Entry{Path: "x/"}, Entry{Path: "x/y/"}, file("x/y/kept", 1), Entry{Path: "z/"}, Entry{Path: "w/"})
	target := mustFromEntries(t, file("x/y/kept", 1), file("w/new", 2))
	diff, err := Apply(Compare(base, target), FilterDeletions())
	if err != nil {
		t.Fatal("unable to filter deletions:", err)
	}
	if d := cmp.Diff([]string{"z/"}, diff.Removed()); d != "" {
		t.Error("removed mismatch (-want +got):\n", d)
	}
}

// TestPipeline tests the full incoming pipeline against a store, including
// immutability of the input diff.
func TestPipeline(t *testing.T) {
	store, err := resource.NewMemory(map[string]string{
		"keep/same.txt": "same",
		"keep/old.txt":  "old",
		"gone/x.txt":    "x",
		"changed.txt":   "before",
	})
	if err != nil {
		t.Fatal("unable to create store:", err)
	}
	base, _, err := Build(store, nil)
	if err != nil {
		t.Fatal("unable to build base list:", err)
	}
	target := mustFromEntries(t,
		Entry{Path: "keep/"},
		file("keep/same.txt", resource.Checksum([]byte("same"))),
		file("changed.txt", resource.Checksum([]byte("after"))),
		Entry{Path: "fresh/"},
		Entry{Path: "fresh/empty/"},
		file("fresh/file.txt", 7),
	)

	original := Compare(base, target)
	result, err := Apply(original,
		MaterializeFolders(store),
		FilterDeletions(),
		ApplyDeletions(store),
	)
	if err != nil {
		t.Fatal("unable to apply pipeline:", err)
	}

	// Verify the result.
	if d := cmp.Diff([]string{"changed.txt", "fresh/file.txt"}, result.Missing()); d != "" {
		t.Error("missing mismatch (-want +got):\n", d)
	}
	if len(result.Removed()) != 0 {
		t.Error("removed set not cleared")
	}

	// Verify the store.
	if !store.Exists("fresh/empty") {
		t.Error("added folder not materialized")
	}
	for _, path := range []string{"gone", "gone/x.txt", "keep/old.txt"} {
		if store.Exists(path) {
			t.Error("removed resource still exists:", path)
		}
	}
	if !store.Exists("keep/same.txt") {
		t.Error("unaltered resource deleted")
	}

	// Verify that the original diff is unchanged.
	if d := cmp.Diff([]string{"fresh/", "fresh/empty/", "fresh/file.txt"}, original.Added()); d != "" {
		t.Error("original added set modified (-want +got):\n", d)
	}
	if d := cmp.Diff([]string{"gone/", "gone/x.txt", "keep/old.txt"}, original.Removed()); d != "" {
		t.Error("original removed set modified (-want +got):\n", d)
	}
}

// TestDiscardDeletions tests that partial projects never delete.
func TestDiscardDeletions(t *testing.T) {
	base := mustFromEntries(t, file("local-only.txt", 1))
	target := mustFromEntries(t, file("shared.txt", 2))
	diff, err := Apply(Compare(base, target), DiscardDeletions())
	if err != nil {
		t.Fatal("unable to apply transform:", err)
	}
	if len(diff.Removed()) != 0 {
		t.Error("deletions not discarded")
	}
	if d := cmp.Diff([]string{"shared.txt"}, diff.Missing()); d != "" {
		t.Error("missing mismatch (-want +got):\n", d)
	}
}

// TestMaterializeFolderOverFile tests that an added directory replaces a
// removed file at the same path.
func TestMaterializeFolderOverFile(t *testing.T) {
	store, err := resource.NewMemory(map[string]string{"x": "data"})
	if err != nil {
		t.Fatal("unable to create store:", err)
	}
	base, _, err := Build(store, nil)
	if err != nil {
		t.Fatal("unable to build base list:", err)
	}
	target, err := FromPaths("x/", "x/nested/")
	if err != nil {
		t.Fatal("unable to create target list:", err)
	}

	result, err := Apply(Compare(base, target),
		MaterializeFolders(store),
		FilterDeletions(),
		ApplyDeletions(store),
	)
	if err != nil {
		t.Fatal("unable to apply pipeline:", err)
	}
	if len(result.Missing()) != 0 {
		t.Error("unexpected missing paths:", result.Missing())
	}
	listing, err := store.List()
	if err != nil {
		t.Fatal("unable to list store:", err)
	}
	expected := []resource.Resource{
		{Path: "x", Directory: true},
		{Path: "x/nested", Directory: true},
	}
	if d := cmp.Diff(expected, listing); d != "" {
		t.Error("listing mismatch (-want +got):\n", d)
	}
}
