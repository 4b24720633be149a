package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// CREATE TABLE / INDEX statements that skip the IF NOT EXISTS guard
	unguardedCreateRe = regexp.MustCompile(`(?im)^\s*CREATE\s+(UNIQUE\s+)?(TABLE|INDEX)\s+(?:CONCURRENTLY\s+)?(?:"?[a-z_][a-z0-9_]*)`)
	guardedCreateRe   = regexp.MustCompile(`(?im)^\s*CREATE\s+(UNIQUE\s+)?(TABLE|INDEX)\s+(?:CONCURRENTLY\s+)?IF\s+NOT\s+EXISTS\b`)
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// ValidateDir checks every migration in dir: filename shape, unique
// versions, Up before Down, a non-empty Down section, and guarded creates so
// dev autorun can replay against a partially built schema.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateContent(name, string(b)); err != nil {
			return err
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return nil
}

func validateContent(name, txt string) error {
	up := strings.Index(txt, upMarker)
	down := strings.Index(txt, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("migration %q declares Down before Up", name)
	}

	upSection := txt[up:down]
	if creates, guarded := len(unguardedCreateRe.FindAllString(upSection, -1)), len(guardedCreateRe.FindAllString(upSection, -1)); creates > guarded {
		return fmt.Errorf("migration %q has CREATE TABLE/INDEX without IF NOT EXISTS", name)
	}
	if !hasStatement(txt[down+len(downMarker):]) {
		return fmt.Errorf("migration %q has an empty Down section", name)
	}
	return nil
}

// hasStatement reports whether section holds anything besides goose
// annotations, comments and whitespace.
func hasStatement(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return true
	}
	return false
}
