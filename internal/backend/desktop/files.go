package desktop

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type inputFile struct {
	*os.File
	path string
	size int64
}

func (f *inputFile) Path() string { return f.path }

// Size is the expected total size given at creation, not the current length.
func (f *inputFile) Size() int64 { return f.size }

type outputFile struct {
	f *os.File
	w *bufio.Writer
}

func createOutputFile(path string) (*outputFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outputFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (o *outputFile) Write(p []byte) (int, error) { return o.w.Write(p) }
func (o *outputFile) Flush() error                { return o.w.Flush() }

func (o *outputFile) Close() error {
	ferr := o.w.Flush()
	if err := o.f.Close(); err != nil {
		return err
	}
	return ferr
}

// uniquePath returns path, or the first free "name (n).ext" next to it.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// safeDir keeps a relative parent from climbing out of its root.
func safeDir(dir string) string {
	return filepath.Clean("/" + strings.ReplaceAll(dir, `\`, "/"))
}

// safeName drops any directory part of a remote-supplied file name.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if name == "/" || name == "." {
		return ""
	}
	return name
}
