package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	tileUseCase *usecase.TileUseCase
}

func NewHandler(uc *usecase.TileUseCase) *Handler {
	return &Handler{
		tileUseCase: uc,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	if !h.tileUseCase.Ready() {
		h.RespondWithJSON(c, http.StatusServiceUnavailable, "tile source is not ready", nil)
		return
	}
	c.String(http.StatusOK, "OK")
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	c.JSON(code, response{
		Success: code < 400,
		Message: message,
		Data:    data,
	})
}

func (h *Handler) RespondWithError(c *gin.Context, code int, err error) {
	h.RespondWithJSON(c, code, err.Error(), nil)
}
