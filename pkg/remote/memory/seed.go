package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/remote"
)

// Seed copies a local directory tree into the client, overwriting
// existing files. Hidden entries are skipped.
func (c *Client) Seed(ctx context.Context, root string) error {
	count := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && d.Name()[0] == '.' {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		remotePath := "/" + filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, err := c.Mkdir(ctx, remotePath)
			return err
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if _, err := c.WriteFile(ctx, remotePath, data, remote.WriteOptions{Overwrite: true}); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed from %s: %w", root, err)
	}

	logger.Info("Seeded memory remote from %s: %d files", root, count)
	return nil
}
