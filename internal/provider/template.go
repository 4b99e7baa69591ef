package provider

import (
	"strconv"
	"strings"
)

// BuildURL substitutes {z}, {x} and {y} in the config's template.
// Callers check the level range before calling it.
func BuildURL(cfg *TileSourceConfig, level, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(level),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(cfg.urlTemplate)
}
