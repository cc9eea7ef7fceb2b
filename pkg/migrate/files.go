package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe     = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
)

// Migration is one goose SQL file on disk.
type Migration struct {
	Version int64
	Name    string
	Path    string
}

// ListDir returns the SQL migrations in dir ordered by version. Files with a
// malformed name or a repeated version are errors.
func ListDir(dir string) ([]Migration, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var out []Migration
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, e.Name())
		}
		seen[version] = e.Name()
		out = append(out, Migration{Version: version, Name: m[2], Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ValidateDir checks file names and that every migration has a non-empty Up
// section and a Down section.
func ValidateDir(dir string) error {
	migrations, err := ListDir(dir)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		body, err := os.ReadFile(m.Path)
		if err != nil {
			return fmt.Errorf("read file %q: %w", m.Path, err)
		}
		up, ok := upSection(string(body))
		if !ok {
			return fmt.Errorf("migration %q needs \"-- +goose Up\" before \"-- +goose Down\"", filepath.Base(m.Path))
		}
		if !hasStatement(up) {
			return fmt.Errorf("migration %q has an empty Up section", filepath.Base(m.Path))
		}
	}
	return nil
}

// CreateSQLMigration writes <dir>/<version>_<name>.sql. The version is the
// current UTC time, bumped past the newest existing file so order is kept.
func CreateSQLMigration(dir string, name string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(strings.ReplaceAll(safe, " ", "_"), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := ListDir(dir)
	if err != nil {
		return "", err
	}
	version, _ := strconv.ParseInt(time.Now().UTC().Format(versionLayout), 10, 64)
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		next, err := nextVersion(existing[n-1].Version)
		if err != nil {
			return "", err
		}
		version = next
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))
	body := fmt.Sprintf("-- +goose Up\n-- %s\nSELECT 1;\n\n-- +goose Down\nSELECT 1;\n", safe)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// nextVersion adds one second to a YYYYMMDDHHMMSS version.
func nextVersion(v int64) (int64, error) {
	t, err := time.Parse(versionLayout, strconv.FormatInt(v, 10))
	if err != nil {
		return 0, fmt.Errorf("parse version %d: %w", v, err)
	}
	return strconv.ParseInt(t.Add(time.Second).Format(versionLayout), 10, 64)
}

func upSection(body string) (string, bool) {
	upIdx := strings.Index(body, "-- +goose Up")
	downIdx := strings.Index(body, "-- +goose Down")
	if upIdx < 0 || downIdx < upIdx {
		return "", false
	}
	return body[upIdx+len("-- +goose Up") : downIdx], true
}

func hasStatement(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
