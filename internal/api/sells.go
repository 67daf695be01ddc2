package api

import (
	"net/http"

	"bip-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listSells(c *gin.Context) {
	var q service.SellListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBindError(c, err)
		return
	}

	res, err := h.sells.ListSells(c.Request.Context(), &q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// createSell records a simulated sale and reconciles it right away.
func (h *Handler) createSell(c *gin.Context) {
	var req service.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	res, err := h.sells.IngestSale(c.Request.Context(), &req, service.SaleSourceSimulated)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}
