package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bip-service/internal/service"
	"bip-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type apiError struct {
	status  int
	code    string
	message string
}

var sentinelErrors = []struct {
	err error
	apiError
}{
	{service.ErrBipNotFound, apiError{http.StatusNotFound, "bip_not_found", "Bipagem não encontrada"}},
	{service.ErrSellNotFound, apiError{http.StatusNotFound, "sell_not_found", "Venda não encontrada"}},
	{service.ErrEmptyRaw, apiError{http.StatusBadRequest, "raw_required", "O campo raw é obrigatório"}},
	{service.ErrInvalidReason, apiError{http.StatusBadRequest, "invalid_reason", "Motivo de cancelamento inválido"}},
	{service.ErrEmployeeRequired, apiError{http.StatusBadRequest, "employee_required", "Informe o funcionário responsável para este motivo"}},
	{service.ErrEmployeeNotFound, apiError{http.StatusBadRequest, "employee_not_found", "Funcionário responsável não encontrado"}},
	{service.ErrBipNotPending, apiError{http.StatusBadRequest, "bip_not_pending", "Apenas bipagens pendentes podem ser canceladas"}},
	{service.ErrBipNotCancelled, apiError{http.StatusBadRequest, "bip_not_cancelled", "Apenas bipagens canceladas podem ser reativadas"}},
	{service.ErrSuspectBipNotCancelled, apiError{http.StatusBadRequest, "bip_not_cancelled", "Apenas bipagens canceladas podem ser identificadas"}},
	{service.ErrDuplicateInFlight, apiError{http.StatusConflict, "duplicate_in_flight", "Esta bipagem ainda está sendo processada"}},
	{service.ErrBipIdentified, apiError{http.StatusConflict, "bip_identified", "Bipagem com suspeito identificado não pode ser reativada"}},
	{service.ErrAlreadyIdentified, apiError{http.StatusConflict, "already_identified", "Bipagem já possui identificação de suspeito"}},
	{service.ErrUnsupportedMedia, apiError{http.StatusUnsupportedMediaType, "unsupported_media", "Tipo de arquivo não suportado"}},
	{service.ErrMediaTooLarge, apiError{http.StatusRequestEntityTooLarge, "media_too_large", "Arquivo excede o tamanho máximo"}},
}

// respondError maps service errors to a status and a {error, code} body.
func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, errorBody{Error: ve.Message, Code: ve.Code})
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = service.ErrMediaTooLarge
	}

	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			c.JSON(s.status, errorBody{Error: s.message, Code: s.code})
			return
		}
	}

	util.LoggerFromContext(c.Request.Context()).Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, errorBody{
		Error: "Erro interno do servidor",
		Code:  "internal_error",
	})
}

// respondBindError answers a request whose body or query failed binding.
func (h *Handler) respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "Requisição inválida: corpo ou parâmetros mal formatados",
			Code:  "invalid_request",
		})
		return
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "motivo" {
			h.respondError(c, service.ErrInvalidReason)
			return
		}
		messages = append(messages, fieldMessage(fe))
	}

	c.JSON(http.StatusBadRequest, errorBody{
		Error: "Requisição inválida: " + strings.Join(messages, "; "),
		Code:  "invalid_request",
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("o campo %s é obrigatório", fe.Field())
	case "oneof":
		return fmt.Sprintf("o campo %s deve ser um de: %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("o campo %s deve ser no mínimo %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("o campo %s deve ser no máximo %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("o campo %s é inválido", fe.Field())
	}
}
