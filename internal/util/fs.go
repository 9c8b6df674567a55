package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin joins a caller-supplied filename under root, stripping any
// directory components so uploads cannot escape the batch directory.
func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}

// ListByExt returns the sorted paths of regular files in dir whose lowercased
// extension is one of exts (given with the dot, e.g. ".csv"). A missing dir
// yields an empty list, matching how batch directories appear only after the
// first upload.
func ListByExt(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	want := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = struct{}{}
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := want[ext]; ok {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
