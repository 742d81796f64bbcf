package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

func osDirFS(dir string) fs.FS {
	return os.DirFS(dir)
}

// migrationSlug lowercases name and collapses every run of other characters
// into a single underscore.
func migrationSlug(name string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// nextVersion is now as YYYYMMDDHHMMSS, bumped past the newest existing
// version so a lagging clock cannot sort a new file before an old one.
func nextVersion(existing []migrationFile, now time.Time) int64 {
	version, _ := strconv.ParseInt(now.UTC().Format(versionLayout), 10, 64)
	for _, f := range existing {
		if v, _ := strconv.ParseInt(f.version, 10, 64); v >= version {
			version = v + 1
		}
	}
	return version
}

// CreateSQLMigration writes an empty goose migration into dir and returns its
// path. Names must be unique across the directory.
func CreateSQLMigration(dir string, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := readMigrations(osDirFS(dir))
	if err != nil {
		return "", err
	}
	for _, f := range existing {
		if f.name == slug {
			return "", fmt.Errorf("migration %q already exists as version %s", slug, f.version)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", nextVersion(existing, now), slug))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(migrationTemplate, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
