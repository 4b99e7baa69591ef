package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FilesystemCache stores tiles as <root>/<style>/<z>/<x>/<y>.
type FilesystemCache struct {
	root string
}

func NewFilesystemCache(root string) *FilesystemCache {
	return &FilesystemCache{root: root}
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(k TileCacheKey) (TileCacheValue, bool, error) {
	content, err := os.ReadFile(c.path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

// Set writes the tile to a temporary file next to its final path and renames
// it into place, so readers never see a partial tile.
func (c *FilesystemCache) Set(k TileCacheKey, v TileCacheValue) error {
	path := c.path(k)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func (c *FilesystemCache) path(k TileCacheKey) string {
	return filepath.Join(c.root, filepath.Clean("/"+k.Style), strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y))
}
