package api

import (
	"net/http"

	"bip-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) nextSuspectNumber(c *gin.Context) {
	next, err := h.suspects.NextNumber(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_number": next})
}

func (h *Handler) createSuspectIdentification(c *gin.Context) {
	var req service.CreateSuspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	created, err := h.suspects.Identify(c.Request.Context(), &req, currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identification_number": created[0].IdentificationNumber,
		"data":                  created,
	})
}

func (h *Handler) listSuspectIdentifications(c *gin.Context) {
	var q service.SuspectListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBindError(c, err)
		return
	}

	res, err := h.suspects.List(c.Request.Context(), &q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
