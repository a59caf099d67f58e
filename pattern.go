package bqship

import (
	"crypto/sha1"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/xerrors"
)

// placeholder links the source glob to the table pattern: the fragment it
// matches in a file path is substituted into the table pattern.
const placeholder = "{}"

// Table identifies a destination BigQuery table.
type Table struct {
	Project string
	Dataset string
	Table   string
}

func (t Table) String() string {
	return fmt.Sprintf("%s:%s.%s", t.Project, t.Dataset, t.Table)
}

// Task maps one source file to one destination table. Tasks are immutable
// once resolved.
type Task struct {
	Source string
	Table  Table
}

// resolveTasks expands the source pattern into matching files and derives
// each file's destination table. Two files whose placeholder fragments are
// equal resolve to the same table and are later loaded by one job.
func resolveTasks(tablePattern, sourcePattern, defaultProject string) ([]Task, error) {
	glob := strings.Replace(sourcePattern, placeholder, "*", 1)

	files, err := doublestar.FilepathGlob(glob)
	if err != nil {
		return nil, xerrors.Errorf("invalid source pattern %q: %w", sourcePattern, err)
	}
	if len(files) == 0 {
		return nil, xerrors.Errorf("no files match %q", sourcePattern)
	}
	sort.Strings(files)

	var re *regexp.Regexp
	if strings.Contains(sourcePattern, placeholder) && strings.Contains(tablePattern, placeholder) {
		re, err = placeholderRegexp(sourcePattern)
		if err != nil {
			return nil, err
		}
	}

	tasks := make([]Task, 0, len(files))
	for _, f := range files {
		tp := tablePattern
		if re != nil {
			m := re.FindStringSubmatch(filepath.ToSlash(f))
			if m == nil {
				return nil, xerrors.Errorf("file %s does not match pattern %q", f, sourcePattern)
			}
			tp = strings.Replace(tablePattern, placeholder, m[1], 1)
		}

		table, err := parseTable(tp, defaultProject)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, Task{Source: f, Table: table})
	}

	return tasks, nil
}

// placeholderRegexp compiles the source glob into an anchored regexp whose
// first capture group is the placeholder fragment.
func placeholderRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], placeholder):
			b.WriteString("(.*?)")
			i += len(placeholder)
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, xerrors.Errorf("invalid source pattern %q: %w", pattern, err)
	}

	return re, nil
}

// parseTable parses "project:dataset.table" or "dataset.table". A missing
// project part falls back to the configured project.
func parseTable(spec, defaultProject string) (Table, error) {
	t := Table{Project: defaultProject}

	rest := spec
	if i := strings.Index(rest, ":"); i >= 0 {
		t.Project = rest[:i]
		rest = rest[i+1:]
	}

	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || t.Project == "" || parts[0] == "" || parts[1] == "" {
		return Table{}, xerrors.Errorf("invalid table %q (want [project:]dataset.table)", spec)
	}
	t.Dataset, t.Table = parts[0], parts[1]

	return t, nil
}

var objectNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// objectName builds the staging object name for one chunk of one source
// file. The sha1 of the source path keeps names of files with equal
// basenames apart; the zero-padded index keeps chunk order readable.
func objectName(t Table, source string, seq int, ext string) string {
	sum := sha1.Sum([]byte(source))
	sanitized := objectNameSanitizer.ReplaceAllString(t.String(), "_")

	return fmt.Sprintf("%s_%x_%s_chunk%09d%s", sanitized, sum, filepath.Base(source), seq, ext)
}
