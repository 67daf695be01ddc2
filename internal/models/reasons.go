package models

// Cancellation reasons (motivo_cancelamento).
const (
	MotivoDevolucaoMercadoria = "devolucao_mercadoria"
	MotivoProdutoAbandonado   = "produto_abandonado"
	MotivoFaltaCancelamento   = "falta_cancelamento"
	MotivoErroOperador        = "erro_operador"
	MotivoErroBalconista      = "erro_balconista"
	MotivoFurto               = "furto"
)

// CancellationReasons lists every accepted motivo_cancelamento in display order.
var CancellationReasons = []string{
	MotivoDevolucaoMercadoria,
	MotivoProdutoAbandonado,
	MotivoFaltaCancelamento,
	MotivoErroOperador,
	MotivoErroBalconista,
	MotivoFurto,
}

// ValidCancellationReason reports whether reason is one of CancellationReasons.
func ValidCancellationReason(reason string) bool {
	for _, r := range CancellationReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// ReasonRequiresEmployee is true for reasons that blame a staff member.
func ReasonRequiresEmployee(reason string) bool {
	return reason == MotivoErroOperador || reason == MotivoErroBalconista
}
