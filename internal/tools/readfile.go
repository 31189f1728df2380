package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxReadBytes = 32 * 1024

// FileReader reads local text files, such as the file attached to a
// question. When Root is set, paths are resolved under it and may not
// escape it.
type FileReader struct {
	Root string
}

func (f FileReader) Name() string { return "read_file" }

func (f FileReader) Description() string {
	return "Read a local text file and return its contents (truncated to 32KB)."
}

func (f FileReader) Schema() map[string]any {
	return objectSchema([]string{"path"}, map[string]any{
		"path": map[string]any{"type": "string", "description": "File name or path."},
	})
}

// Call implements Tool.
func (f FileReader) Call(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	resolved, err := f.resolve(path)
	if err != nil {
		return "", err
	}

	fh, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	buf, err := io.ReadAll(io.LimitReader(fh, maxReadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text := string(buf)
	if len(buf) > maxReadBytes {
		text = text[:maxReadBytes] + "\n[TRUNCATED]"
	}
	return text, nil
}

func (f FileReader) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if f.Root == "" {
		return filepath.Clean(path), nil
	}
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", err
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %s", path, f.Root)
	}
	return full, nil
}
