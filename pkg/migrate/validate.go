package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// Validate checks every .sql file in fsys: the name must be
// <14-digit version>_<snake_name>.sql, versions must be unique, and the body
// must hold a non-empty Up section followed by a Down section.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		match := migrationNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := seen[match[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, match[1], prev)
		}
		seen[match[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := checkSections(body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ValidateDir runs Validate against a directory on disk.
func ValidateDir(dir string) error {
	fsys, err := Source(dir)
	if err != nil {
		return err
	}
	return Validate(fsys)
}

func checkSections(body []byte) error {
	var (
		section    string
		upHasSQL   bool
		sawUp      bool
		sawDown    bool
		openBlocks int
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "-- +goose Up":
			if sawUp {
				return fmt.Errorf("more than one Up section")
			}
			sawUp, section = true, "up"
			continue
		case "-- +goose Down":
			if !sawUp {
				return fmt.Errorf("Down section before Up")
			}
			sawDown, section = true, "down"
			continue
		case "-- +goose StatementBegin":
			openBlocks++
			continue
		case "-- +goose StatementEnd":
			openBlocks--
			continue
		}
		if section == "up" && line != "" && !strings.HasPrefix(line, "--") {
			upHasSQL = true
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case !sawUp:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case !sawDown:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case !upHasSQL:
		return fmt.Errorf("Up section has no statements")
	case openBlocks != 0:
		return fmt.Errorf("unbalanced StatementBegin/StatementEnd")
	}
	return nil
}
