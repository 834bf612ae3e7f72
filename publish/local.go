package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalTarget copies artifacts into the sharded tree under a root directory.
type LocalTarget struct {
	root string
}

// NewLocal returns a Target writing under |root|.
func NewLocal(root string) *LocalTarget {
	return &LocalTarget{root: root}
}

// Put copies |localFile| to |destPath| under the root, creating intermediate
// shard directories as needed.
func (t *LocalTarget) Put(_ context.Context, localFile, destPath string) error {
	var dest = filepath.Join(t.root, filepath.FromSlash(destPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}

	var in, err = os.Open(localFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localFile, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dest, err)
	}
	return out.Close()
}
