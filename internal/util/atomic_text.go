package util

import (
	"fmt"
	"os"
)

func WriteTextAtomic(path string, content string) error {
	return writeAtomic(path, "*.txt", func(f *os.File) error {
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		return nil
	})
}
