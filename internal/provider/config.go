package provider

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// WebMercatorBound is the extent of the web-mercator tiling scheme in degrees.
var WebMercatorBound = orb.Bound{
	Min: orb.Point{-180, -85.05112877980659},
	Max: orb.Point{180, 85.05112877980659},
}

// TileSourceConfig is the resolved, immutable description of a tile source.
// It is shared read-only by every tile request of a provider.
type TileSourceConfig struct {
	baseURL     string
	urlTemplate string
	username    string
	styleID     string
	tileSize    int
	scaleFactor bool

	tileWidth  int
	tileHeight int

	minimumLevel *int
	maximumLevel *int

	rectangle orb.Bound
	credit    string
}

func (c *TileSourceConfig) BaseURL() string     { return c.baseURL }
func (c *TileSourceConfig) URLTemplate() string { return c.urlTemplate }
func (c *TileSourceConfig) Username() string    { return c.username }
func (c *TileSourceConfig) StyleID() string     { return c.styleID }
func (c *TileSourceConfig) TileSize() int       { return c.tileSize }
func (c *TileSourceConfig) ScaleFactor() bool   { return c.scaleFactor }
func (c *TileSourceConfig) TileWidth() int      { return c.tileWidth }
func (c *TileSourceConfig) TileHeight() int     { return c.tileHeight }
func (c *TileSourceConfig) Rectangle() orb.Bound {
	return c.rectangle
}
func (c *TileSourceConfig) Credit() string { return c.credit }

// MinimumLevel reports the lower zoom bound, if any.
func (c *TileSourceConfig) MinimumLevel() (int, bool) {
	if c.minimumLevel == nil {
		return 0, false
	}
	return *c.minimumLevel, true
}

// MaximumLevel reports the upper zoom bound, if any. Absent means unbounded.
func (c *TileSourceConfig) MaximumLevel() (int, bool) {
	if c.maximumLevel == nil {
		return 0, false
	}
	return *c.maximumLevel, true
}

// HasLevel reports whether level lies inside the configured bounds.
func (c *TileSourceConfig) HasLevel(level int) bool {
	if c.minimumLevel != nil && level < *c.minimumLevel {
		return false
	}
	if c.maximumLevel != nil && level > *c.maximumLevel {
		return false
	}
	return true
}

// baseSource is the part of the config known before the token resolves.
type baseSource struct {
	baseURL  string
	query    url.Values
	username string
	opts     Options
}

func newBaseSource(opts Options) baseSource {
	raw := opts.URL
	var query url.Values
	if opts.Resource != nil {
		raw = opts.Resource.URL
		query = opts.Resource.Query
	}
	if raw == "" {
		raw = DefaultURL
	}

	username := opts.Username
	if username == "" {
		username = DefaultUsername
	}

	return baseSource{
		baseURL:  normalizeBaseURL(raw),
		query:    query,
		username: username,
		opts:     opts,
	}
}

// normalizeBaseURL makes sure base ends with exactly one slash.
func normalizeBaseURL(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

// resolve builds the final config once the token is known.
func (b baseSource) resolve(token string) *TileSourceConfig {
	tileSize := b.opts.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}

	var sb strings.Builder
	sb.WriteString(b.baseURL)
	sb.WriteString(b.username)
	sb.WriteByte('/')
	sb.WriteString(b.opts.StyleID)
	sb.WriteString("/tiles/")
	sb.WriteString(strconv.Itoa(tileSize))
	sb.WriteString("/{z}/{x}/{y}")
	if b.opts.ScaleFactor {
		sb.WriteString("@2x")
	}
	sb.WriteString("?access_token=")
	sb.WriteString(url.QueryEscape(token))
	writeExtraQuery(&sb, b.query)

	rectangle := WebMercatorBound
	if b.opts.Rectangle != nil {
		rectangle = *b.opts.Rectangle
	}

	credit := b.opts.Credit
	if credit == "" {
		credit = DefaultCredit
	}

	return &TileSourceConfig{
		baseURL:      b.baseURL,
		urlTemplate:  sb.String(),
		username:     b.username,
		styleID:      b.opts.StyleID,
		tileSize:     tileSize,
		scaleFactor:  b.opts.ScaleFactor,
		tileWidth:    logicalTileSize,
		tileHeight:   logicalTileSize,
		minimumLevel: copyInt(b.opts.MinimumLevel),
		maximumLevel: copyInt(b.opts.MaximumLevel),
		rectangle:    rectangle,
		credit:       credit,
	}
}

// writeExtraQuery appends resource query parameters in key order so the
// template is deterministic. access_token is owned by the resolver.
func writeExtraQuery(sb *strings.Builder, query url.Values) {
	if len(query) == 0 {
		return
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range query[k] {
			sb.WriteByte('&')
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
