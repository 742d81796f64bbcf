package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

var (
	sqlFileRe     = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE (?:IF NOT EXISTS )?([a-z0-9_]+)`)
)

// ValidateFS checks migration filenames, goose markers and version
// uniqueness.
func ValidateFS(fsys fs.FS) error {
	_, err := readMigrations(fsys)
	return err
}

// ValidateDir is ValidateFS over a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(osDirFS(dir))
}

// CheckModelCoverage fails when a table owned by a gorm model is never
// created by the SQL migrations, so the Postgres and SQLite schemas cannot
// drift apart silently.
func CheckModelCoverage(fsys fs.FS, models []any) error {
	files, err := readMigrations(fsys)
	if err != nil {
		return err
	}
	created := map[string]struct{}{}
	for _, f := range files {
		for _, m := range createTableRe.FindAllStringSubmatch(f.body, -1) {
			created[strings.ToLower(m[1])] = struct{}{}
		}
	}

	cache := &sync.Map{}
	var missing []string
	for _, model := range models {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		if err != nil {
			return fmt.Errorf("parse model %T: %w", model, err)
		}
		if _, ok := created[s.Table]; !ok {
			missing = append(missing, s.Table)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("tables without a migration: %s", strings.Join(missing, ", "))
	}
	return nil
}

type migrationFile struct {
	version string
	name    string
	body    string
}

func readMigrations(fsys fs.FS) ([]migrationFile, error) {
	if fsys == nil {
		return nil, fmt.Errorf("migrations fs is required")
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}
		body := string(b)
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(body, marker) {
				return nil, fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
		files = append(files, migrationFile{version: m[1], name: m[2], body: body})
	}
	return files, nil
}
