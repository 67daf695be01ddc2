package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) dailyResults(c *gin.Context) {
	res, err := h.reports.DailyResults(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) rankings(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "Limite inválido", Code: "invalid_limit"})
			return
		}
		limit = n
	}

	res, err := h.reports.Rankings(c.Request.Context(), c.Query("date_from"), c.Query("date_to"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}
