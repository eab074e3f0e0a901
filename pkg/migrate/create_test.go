package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Coupon Index!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_coupon_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration does not validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "  !!  "); err == nil {
		t.Fatal("expected error for unusable name")
	}
}

func TestNextVersionSkipsPastExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "29990101000000_future.sql"), []byte(sqlTemplate), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := nextVersion(dir, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if got != 29990101000001 {
		t.Fatalf("expected version after existing file, got %d", got)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"bad.sql": {Data: []byte(sqlTemplate)},
		},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte(sqlTemplate)},
			"20260101000000_b.sql": {Data: []byte(sqlTemplate)},
		},
		"missing down": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"empty up": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- nothing\n-- +goose Down\nSELECT 1;\n")},
		},
		"unbalanced block": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := Validate(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	fsys, err := Source("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := Validate(fsys); err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
}
