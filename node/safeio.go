package node

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// maxConfigBytes bounds what LoadConfigFile will read.
const maxConfigBytes = 1 << 20

func readFileByPath(path string) ([]byte, error) {
	return readFileFromDir(filepath.Dir(path), filepath.Base(path))
}

// readFileFromDir reads a single regular file named directly inside dir.
func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	f, err := os.DirFS(dir).Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fmt.Errorf("not a regular file")}
	}
	if st.Size() > maxConfigBytes {
		return nil, fmt.Errorf("%s: %d bytes exceeds %d", name, st.Size(), maxConfigBytes)
	}
	return io.ReadAll(io.LimitReader(f, maxConfigBytes+1))
}
