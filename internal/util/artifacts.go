package util

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Ingest artifacts (source metadata, passage dumps, report documents) are
// written through a temp file plus rename so readers never observe a partial
// file, even if the worker dies mid-write.

func WriteJSONAtomic(path string, v any) error {
	return writeAtomic(path, "*.json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

func WriteJSONLinesAtomic(path string, rows []any) error {
	return writeAtomic(path, "*.jsonl", func(f *os.File) error {
		w := bufio.NewWriter(f)
		for _, row := range rows {
			b, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("marshal row: %w", err)
			}
			if _, err := w.Write(append(b, '\n')); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush rows: %w", err)
		}
		return nil
	})
}

func writeAtomic(path, pattern string, fill func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "tmp-"+pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
