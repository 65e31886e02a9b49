package datastoreMatching

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadReference(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name:    "header column resolved case-insensitively",
			file:    "ref.csv",
			content: "ID,datastore\n1,PostgreSQL\n2,MySQL\n",
			want:    []string{"PostgreSQL", "MySQL"},
		},
		{
			name:    "order and duplicates preserved",
			file:    "ref.csv",
			content: "Datastore\nRedis\nPostgreSQL\nRedis\n",
			want:    []string{"Redis", "PostgreSQL", "Redis"},
		},
		{
			name:    "no recognized header falls back to first column",
			file:    "ref.csv",
			content: "PostgreSQL\nMySQL\n",
			want:    []string{"PostgreSQL", "MySQL"},
		},
		{
			name:    "values trimmed and blank cells dropped",
			file:    "ref.csv",
			content: "Datastore\n  MongoDB  \nRedis\n",
			want:    []string{"MongoDB", "Redis"},
		},
		{
			name:    "tsv selected by extension",
			file:    "ref.tsv",
			content: "ID\tData Store\n1\tKafka\n",
			want:    []string{"Kafka"},
		},
		{
			name:    "byte order mark stripped from first cell",
			file:    "ref.csv",
			content: "\uFEFFDatastore\nNeo4j\n",
			want:    []string{"Neo4j"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, tc.file, tc.content)
			got, err := LoadReference(path)
			if err != nil {
				t.Fatalf("LoadReference: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestLoadReferenceErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadReference(filepath.Join(t.TempDir(), "absent.csv"))
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeTempFile(t, "empty.csv", "")
		_, err := LoadReference(path)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("expected ErrFormat, got %v", err)
		}
	})

	t.Run("header without data", func(t *testing.T) {
		path := writeTempFile(t, "ref.csv", "Datastore\n")
		_, err := LoadReference(path)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("expected ErrFormat, got %v", err)
		}
	})
}
