package cache

import "fmt"

// TileCacheKey identifies an encoded tile of one style variant.
type TileCacheKey struct {
	Style string
	X     int
	Y     int
	Z     int
}

func (k TileCacheKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Style, k.Z, k.X, k.Y)
}

type TileCacheValue []byte

type TileCache interface {
	Get(TileCacheKey) (TileCacheValue, bool, error)
	Set(TileCacheKey, TileCacheValue) error
}
