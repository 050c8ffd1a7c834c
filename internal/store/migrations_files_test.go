package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
)

func TestMigrationFilesAreWellFormed(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.up\.sql$`)
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("migration file %q does not match NNNN_name.up.sql", name)
		}
		versions = append(versions, match[1])
	}

	if len(versions) == 0 {
		t.Fatal("no migrations discovered")
	}

	sort.Strings(versions)
	for i, version := range versions {
		if version != fmtVersion(i+1) {
			t.Fatalf("migration versions must be sequential: expected %s, got %s", fmtVersion(i+1), version)
		}
	}
}

func TestInitialMigrationCoversCoreTables(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	sqlText := string(contents)

	for _, table := range []string{
		"staff_members",
		"organizational_hierarchy",
		"dossiers",
		"assignments",
		"escalation_records",
		"escalation_jobs",
		"escalation_job_items",
	} {
		if !strings.Contains(sqlText, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected initial migration to create %s", table)
		}
	}
}

func TestEventsMigrationEnforcesVersionUniqueness(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0002_events.up.sql"))
	if err != nil {
		t.Fatalf("read events migration: %v", err)
	}
	sqlText := string(contents)

	if !strings.Contains(sqlText, "UNIQUE (aggregate_type, aggregate_id, version)") {
		t.Fatal("expected unique constraint on aggregate version")
	}
	if !strings.Contains(sqlText, "aggregate_snapshots") {
		t.Fatal("expected snapshot table in events migration")
	}
}

func fmtVersion(n int) string {
	return fmt.Sprintf("%04d", n)
}
