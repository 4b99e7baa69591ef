package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
)

func (h *Handler) Tile(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())
	if v, ok := c.Get("logger"); ok {
		l = v.(logger.Logger)
	}

	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	// accept a trailing extension such as 3.png
	y, errY := strconv.Atoi(strings.TrimSuffix(c.Param("y"), ".png"))
	if errZ != nil || errX != nil || errY != nil {
		l.Warn("invalid tile parameters", "z", c.Param("z"), "x", c.Param("x"), "y", c.Param("y"))
		h.RespondWithError(c, http.StatusBadRequest, ErrInvalidCoordinate)
		return
	}

	tile, err := h.tileUseCase.GetTile(c.Request.Context(), z, x, y)
	if err != nil {
		code, public := statusFor(err)
		if code >= 500 {
			l.Error("failed to get tile", "z", z, "x", x, "y", y, "status", code, "error", err)
		} else {
			l.Debug("tile rejected", "z", z, "x", x, "y", y, "status", code, "error", err)
		}
		h.RespondWithError(c, code, public)
		return
	}

	c.Header("Cache-Control", "public, max-age=604800")
	c.Header("X-Tile-Source", tile.Source)
	if style, err := h.tileUseCase.Style(); err == nil {
		c.Header("X-Tile-Credit", style.Credit())
	}

	contentType := tile.Image.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	c.Data(http.StatusOK, contentType, tile.Image.Data)
}

type styleResponse struct {
	Username     string     `json:"username"`
	StyleID      string     `json:"style_id"`
	TileSize     int        `json:"tile_size"`
	ScaleFactor  bool       `json:"scale_factor"`
	TileWidth    int        `json:"tile_width"`
	TileHeight   int        `json:"tile_height"`
	MinimumLevel *int       `json:"minimum_level,omitempty"`
	MaximumLevel *int       `json:"maximum_level,omitempty"`
	Rectangle    [4]float64 `json:"rectangle"`
	Credit       string     `json:"credit"`
	CacheKey     string     `json:"cache_key"`
}

// Style describes the resolved tile source. The access token is never exposed.
func (h *Handler) Style(c *gin.Context) {
	cfg, err := h.tileUseCase.Style()
	if err != nil {
		code, public := statusFor(err)
		h.RespondWithError(c, code, public)
		return
	}

	resp := styleResponse{
		Username:    cfg.Username(),
		StyleID:     cfg.StyleID(),
		TileSize:    cfg.TileSize(),
		ScaleFactor: cfg.ScaleFactor(),
		TileWidth:   cfg.TileWidth(),
		TileHeight:  cfg.TileHeight(),
		Credit:      cfg.Credit(),
		CacheKey:    usecase.StyleKey(cfg),
	}
	if v, ok := cfg.MinimumLevel(); ok {
		resp.MinimumLevel = &v
	}
	if v, ok := cfg.MaximumLevel(); ok {
		resp.MaximumLevel = &v
	}
	r := cfg.Rectangle()
	resp.Rectangle = [4]float64{r.Min.Lon(), r.Min.Lat(), r.Max.Lon(), r.Max.Lat()}

	h.RespondWithJSON(c, http.StatusOK, "style", resp)
}
