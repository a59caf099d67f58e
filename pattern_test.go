package bqship

import (
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("h\n"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", n, err)
		}
	}

	return dir
}

func TestResolveTasks_Placeholder(t *testing.T) {
	dir := writeFiles(t, "sales.csv", "users.csv")

	tasks, err := resolveTasks("ds.{}", filepath.Join(dir, "{}.csv"), "proj")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Task{
		{Source: filepath.Join(dir, "sales.csv"), Table: Table{Project: "proj", Dataset: "ds", Table: "sales"}},
		{Source: filepath.Join(dir, "users.csv"), Table: Table{Project: "proj", Dataset: "ds", Table: "users"}},
	}

	if !reflect.DeepEqual(tasks, want) {
		t.Errorf("tasks = %+v, want %+v", tasks, want)
	}
}

func TestResolveTasks_NoPlaceholder(t *testing.T) {
	dir := writeFiles(t, "a.csv", "b.csv")

	tasks, err := resolveTasks("proj2:ds.T", filepath.Join(dir, "*.csv"), "proj")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		want := Table{Project: "proj2", Dataset: "ds", Table: "T"}
		if task.Table != want {
			t.Errorf("task table = %+v, want %+v", task.Table, want)
		}
	}
}

func TestResolveTasks_NoMatch(t *testing.T) {
	dir := t.TempDir()

	if _, err := resolveTasks("ds.{}", filepath.Join(dir, "{}.csv"), "proj"); err == nil {
		t.Error("expected error when no files match")
	}
}

func TestPlaceholderRegexp(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    string
	}{
		{pattern: "data/{}.csv", path: "data/sales.csv", want: "sales"},
		{pattern: "data/{}_dump.csv", path: "data/2024_01_dump.csv", want: "2024_01"},
		{pattern: "exports/*/{}.csv", path: "exports/v1/users.csv", want: "users"},
	}

	for _, tt := range tests {
		re, err := placeholderRegexp(tt.pattern)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.pattern, err)
		}

		m := re.FindStringSubmatch(tt.path)
		if m == nil {
			t.Fatalf("pattern %q did not match %q", tt.pattern, tt.path)
		}
		if m[1] != tt.want {
			t.Errorf("fragment for %q = %q, want %q", tt.path, m[1], tt.want)
		}
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		spec    string
		project string
		want    Table
		wantErr bool
	}{
		{spec: "p:d.t", project: "def", want: Table{Project: "p", Dataset: "d", Table: "t"}},
		{spec: "d.t", project: "def", want: Table{Project: "def", Dataset: "d", Table: "t"}},
		{spec: "d.t", project: "", wantErr: true},
		{spec: "t", project: "def", wantErr: true},
		{spec: ".t", project: "def", wantErr: true},
		{spec: "d.", project: "def", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTable(tt.spec, tt.project)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTable(%q, %q) should fail", tt.spec, tt.project)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTable(%q, %q) unexpected error: %v", tt.spec, tt.project, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTable(%q, %q) = %+v, want %+v", tt.spec, tt.project, got, tt.want)
		}
	}
}

func TestObjectName(t *testing.T) {
	table := Table{Project: "proj", Dataset: "ds", Table: "T"}

	name := objectName(table, "data/a.csv", 0, ".gz")

	re := regexp.MustCompile(`^proj_ds_T_[0-9a-f]{40}_a\.csv_chunk000000000\.gz$`)
	if !re.MatchString(name) {
		t.Errorf("object name %q does not match %s", name, re)
	}

	// Names for the same file are stable; a different path hashes apart.
	if again := objectName(table, "data/a.csv", 0, ".gz"); again != name {
		t.Errorf("object name not stable: %q vs %q", name, again)
	}
	if other := objectName(table, "other/a.csv", 0, ".gz"); other == name {
		t.Errorf("distinct source paths should produce distinct names, both %q", name)
	}

	if next := objectName(table, "data/a.csv", 12, ".gz"); !regexp.MustCompile(`_chunk000000012\.gz$`).MatchString(next) {
		t.Errorf("unexpected chunk suffix in %q", next)
	}
}

func TestGroupTasks(t *testing.T) {
	ta := Table{Project: "p", Dataset: "d", Table: "a"}
	tb := Table{Project: "p", Dataset: "d", Table: "b"}

	runs := groupTasks([]Task{
		{Source: "1.csv", Table: ta},
		{Source: "2.csv", Table: tb},
		{Source: "3.csv", Table: ta},
	})

	if len(runs) != 2 {
		t.Fatalf("expected 2 table runs, got %d", len(runs))
	}
	if runs[0].table != ta || runs[1].table != tb {
		t.Errorf("table order = %v, %v; want %v, %v", runs[0].table, runs[1].table, ta, tb)
	}
	if !reflect.DeepEqual(runs[0].files, []string{"1.csv", "3.csv"}) {
		t.Errorf("files for %v = %v, want [1.csv 3.csv]", ta, runs[0].files)
	}
}
