package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// migrationFilePattern matches {version}_{description}.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scanner reads migrations from a directory of an fs.FS, which lets the
// schema ship embedded in the binary.
type Scanner struct {
	fsys fs.FS
	dir  string
}

// NewScanner creates a Scanner over dir inside fsys.
func NewScanner(fsys fs.FS, dir string) *Scanner {
	return &Scanner{fsys: fsys, dir: dir}
}

// Scan returns every migration in the directory ordered by numeric version.
func (s *Scanner) Scan() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, NewMigrationError("", s.dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		m, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}

		version, _ := strconv.Atoi(m.Version)
		if existing, ok := seen[version]; ok {
			return nil, NewMigrationError(m.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s", ErrDuplicateVersion, m.Version, existing, entry.Name()))
		}
		seen[version] = entry.Name()
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		vi, _ := strconv.Atoi(migrations[i].Version)
		vj, _ := strconv.Atoi(migrations[j].Version)
		return vi < vj
	})

	return migrations, nil
}

func (s *Scanner) parse(name string) (Migration, error) {
	filePath := path.Join(s.dir, name)

	matches := migrationFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return Migration{}, NewMigrationError("", filePath, "validate filename",
			fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, name))
	}
	version, fileDescription := matches[1], matches[2]

	raw, err := fs.ReadFile(s.fsys, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(version, filePath, "read file", err)
	}
	content := string(raw)

	if len(SplitStatements(content)) == 0 {
		return Migration{}, NewMigrationError(version, filePath, "validate content",
			fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
	}
	if err := checkParentheses(content); err != nil {
		return Migration{}, NewMigrationError(version, filePath, "validate SQL syntax", err)
	}

	description := descriptionFromContent(content)
	if description == "" {
		description = strings.ReplaceAll(fileDescription, "_", " ")
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         content,
		FilePath:    filePath,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(raw)),
	}, nil
}

// SplitStatements splits a script on semicolons and drops comment-only lines.
func SplitStatements(script string) []string {
	var statements []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}

func checkParentheses(script string) error {
	depth := 0
	for _, line := range strings.Split(script, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		for _, r := range line {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
				}
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

// descriptionFromContent reads a leading "-- Description: ..." comment.
func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}
