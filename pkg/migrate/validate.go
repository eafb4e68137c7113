package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var fileName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migration files on disk.
func ValidateDir(dir string) error {
	_, err := scan(os.DirFS(dir))
	return err
}

// ValidateFS checks names, version uniqueness and goose annotations.
func ValidateFS(fsys fs.FS) error {
	_, err := scan(fsys)
	return err
}

func latestVersion(fsys fs.FS) (int64, error) {
	versions, err := scan(fsys)
	if err != nil {
		return 0, err
	}
	var latest int64
	for v := range versions {
		latest = max(latest, v)
	}
	return latest, nil
}

func scan(fsys fs.FS) (map[int64]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	versions := make(map[int64]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		match := fileName.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		version, err := ParseVersion(match[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := versions[version]; dup {
			return nil, fmt.Errorf("%s and %s share version %d", prev, name, version)
		}
		versions[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		up := strings.Index(string(body), "-- +goose Up")
		down := strings.Index(string(body), "-- +goose Down")
		switch {
		case up < 0:
			return nil, fmt.Errorf("%s: missing -- +goose Up", name)
		case down < 0:
			return nil, fmt.Errorf("%s: missing -- +goose Down", name)
		case down < up:
			return nil, fmt.Errorf("%s: Down section precedes Up", name)
		}
	}
	return versions, nil
}
