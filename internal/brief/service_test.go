package brief

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestBriefLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{
		TitleEN:   "Bilateral Relations Overview",
		TitleAR:   "نظرة عامة على العلاقات الثنائية",
		SummaryEN: "Initial assessment.",
		SummaryAR: "تقييم أولي.",
		KeyPointsEN: []string{"Trade volume rising"},
		KeyPointsAR: []string{"حجم التبادل التجاري في ارتفاع"},
	}

	if err := svc.EnsureRepo("dos_1", initial, "Reem"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "dos_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	if !svc.Exists("dos_1") {
		t.Fatal("Exists() = false after EnsureRepo")
	}

	updated := initial
	updated.SummaryEN = "Updated assessment after the June visit."
	commit, err := svc.Save("dos_1", updated, "Reem", "Update summary after visit")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	head, headCommit, err := svc.Head("dos_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.SummaryEN != updated.SummaryEN {
		t.Fatalf("unexpected head content: %+v", head)
	}
	if headCommit.Hash != commit.Hash {
		t.Fatalf("head commit %s, want %s", headCommit.Hash, commit.Hash)
	}

	history, err := svc.History("dos_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	old, err := svc.Revision("dos_1", history[1].Hash)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if old.SummaryEN != initial.SummaryEN {
		t.Fatalf("unexpected old revision: %+v", old)
	}
}

func TestEnsureRepoIsIdempotent(t *testing.T) {
	svc := New(t.TempDir())
	initial := Content{TitleEN: "Doc", SummaryEN: "First"}

	if err := svc.EnsureRepo("dos_1", initial, "Reem"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	changed := initial
	changed.SummaryEN = "Second"
	if err := svc.EnsureRepo("dos_1", changed, "Reem"); err != nil {
		t.Fatalf("second EnsureRepo() error = %v", err)
	}

	head, _, err := svc.Head("dos_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.SummaryEN != "First" {
		t.Fatalf("second EnsureRepo overwrote content: %+v", head)
	}
}

func TestDiffFields(t *testing.T) {
	from := Content{TitleEN: "A", SummaryEN: "One", KeyPointsEN: []string{"x"}}
	to := Content{TitleEN: "A", SummaryEN: "Two", KeyPointsEN: []string{"x", "y"}}

	if !HasChanges(from, to) {
		t.Fatal("HasChanges() = false for differing content")
	}
	diff := DiffFields(from, to)
	if len(diff) != 2 {
		t.Fatalf("expected 2 diff entries, got %d: %v", len(diff), diff)
	}
	if diff[0]["field"] != "keyPointsEn" || diff[1]["field"] != "summaryEn" {
		t.Fatalf("unexpected diff order: %v", diff)
	}

	if HasChanges(from, from) {
		t.Fatal("HasChanges() = true for identical content")
	}
	if len(DiffFields(from, from)) != 0 {
		t.Fatal("DiffFields() not empty for identical content")
	}
}

func TestConcurrentSaves(t *testing.T) {
	svc := New(t.TempDir())
	initial := Content{TitleEN: "Doc", SummaryEN: "Base"}

	if err := svc.EnsureRepo("dos_1", initial, "Reem"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := initial
			next.SummaryEN = fmt.Sprintf("summary-%02d", idx)
			if _, err := svc.Save("dos_1", next, "Reem", fmt.Sprintf("Revision %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Save() concurrent error = %v", err)
		}
	}

	history, err := svc.History("dos_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.Head("dos_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if !strings.HasPrefix(head.SummaryEN, "summary-") {
		t.Fatalf("unexpected head content after concurrent saves: %+v", head)
	}
}
