package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bip-service/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartOverhead is the allowance for part headers and boundaries on top
// of the media limit.
const multipartOverhead = 1 << 20

// ingestWebhook handles scanner deliveries
func (h *Handler) ingestWebhook(c *gin.Context) {
	var req service.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	res, err := h.bips.IngestWebhook(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) cancelBip(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	res, err := h.bips.CancelBip(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d bipagem(ns) cancelada(s)", res.Count),
		"count":   res.Count,
		"data":    res.Bips,
	})
}

func (h *Handler) reactivateBip(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	res, err := h.bips.ReactivateBip(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d bipagem(ns) reativada(s)", res.Count),
		"count":   res.Count,
		"data":    res.Bips,
	})
}

func (h *Handler) getBip(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	bip, err := h.bips.GetBip(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bip})
}

func (h *Handler) listBips(c *gin.Context) {
	var q service.BipListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBindError(c, err)
		return
	}

	res, err := h.bips.ListBips(c.Request.Context(), &q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// exportBips renders the filtered bips as an XLSX download. The workbook is
// built before the first byte is sent so failures still produce a JSON error.
func (h *Handler) exportBips(c *gin.Context) {
	var q service.BipListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBindError(c, err)
		return
	}

	var buf bytes.Buffer
	rows, err := h.bips.ExportBips(c.Request.Context(), &q, &buf)
	if err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("bipagens_%s_%s.xlsx", q.DateFrom, q.DateTo)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Total-Rows", strconv.Itoa(rows))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// attachMedia streams the multipart field named after kind into storage.
func (h *Handler) attachMedia(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}

		limit := service.MaxMediaBytes(kind)
		if c.Request.ContentLength > limit+multipartOverhead {
			h.respondError(c, service.ErrMediaTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

		mr, err := c.Request.MultipartReader()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "Envie o arquivo como multipart/form-data", Code: "invalid_multipart"})
			return
		}

		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, errorBody{
					Error: fmt.Sprintf("Campo %q é obrigatório", kind),
					Code:  "file_required",
				})
				return
			}
			if err != nil {
				h.respondError(c, err)
				return
			}
			if part.FormName() != kind || part.FileName() == "" {
				part.Close()
				continue
			}

			bip, err := h.bips.AttachMedia(c.Request.Context(), id, kind, part, -1)
			part.Close()
			if err != nil {
				h.respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": bip})
			return
		}
	}
}

func (h *Handler) removeMedia(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}

		bip, err := h.bips.RemoveMedia(c.Request.Context(), id, kind)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": bip})
	}
}
