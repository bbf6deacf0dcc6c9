// Package testsupport holds fixture and golden file helpers for query cache tests.
package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/goliatone/go-query-cache/query"
)

// UpdateGoldenEnv rewrites golden files instead of comparing when set to "1".
const UpdateGoldenEnv = "QUERYCACHE_UPDATE_GOLDEN"

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadDescriptor decodes a JSON query descriptor fixture.
func LoadDescriptor(t *testing.T, path string) query.Descriptor {
	t.Helper()

	desc, err := query.Decode(bytes.NewReader(LoadFixture(t, path)))
	if err != nil {
		t.Fatalf("failed to decode descriptor fixture %s: %v", path, err)
	}
	return desc
}

// LoadDescriptors loads every *.json descriptor in dir keyed by file name
// without extension.
func LoadDescriptors(t *testing.T, dir string) map[string]query.Descriptor {
	t.Helper()

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatalf("failed to list fixtures in %s: %v", dir, err)
	}
	if len(paths) == 0 {
		t.Fatalf("no descriptor fixtures in %s", dir)
	}

	out := make(map[string]query.Descriptor, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		out[name] = LoadDescriptor(t, path)
	}
	return out
}

// SortedNames returns the keys of m in sorted order.
func SortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteGolden writes test output to a golden file.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write golden file %s: %v", path, err)
	}
}

// CompareWithGolden compares actual with the golden file at path. A missing
// golden file is created, and UpdateGoldenEnv=1 rewrites it.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) == "1" {
		WriteGolden(t, path, actual)
		return
	}

	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Logf("golden file %s does not exist, creating it", path)
		WriteGolden(t, path, actual)
		return
	}
	if err != nil {
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if !bytes.Equal(actual, expected) {
		t.Errorf("output mismatch for %s:\nexpected:\n%s\nactual:\n%s", path, expected, actual)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(elem ...string) string {
	return filepath.Join(append([]string{"testdata"}, elem...)...)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
