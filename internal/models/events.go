package models

import "time"

// Event types
const (
	EventTypeBipCreated     = "BIP_CREATED"
	EventTypeBipVerified    = "BIP_VERIFIED"
	EventTypeBipCancelled   = "BIP_CANCELLED"
	EventTypeBipReactivated = "BIP_REACTIVATED"
	EventTypeBipUnmatched   = "BIP_UNMATCHED"
	EventTypeSaleRecorded   = "SALE_RECORDED"
	EventTypeSaleCancelled  = "SALE_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BipCreatedEvent published when the webhook persists a scan
type BipCreatedEvent struct {
	BaseEvent
	BipID         int64     `json:"bip_id"`
	EAN           string    `json:"ean"`
	EventDate     time.Time `json:"event_date"`
	BipPriceCents int64     `json:"bip_price_cents"`
	ProductID     *string   `json:"product_id,omitempty"`
}

// BipVerifiedEvent published when a bip is matched to a sale
type BipVerifiedEvent struct {
	BaseEvent
	BipID  int64 `json:"bip_id"`
	SellID int64 `json:"sell_id"`
}

// BipCancelledEvent published for every bip of a cancel cascade
type BipCancelledEvent struct {
	BaseEvent
	BipID                 int64  `json:"bip_id"`
	EAN                   string `json:"ean"`
	TriggerBipID          int64  `json:"trigger_bip_id"`
	MotivoCancelamento    string `json:"motivo_cancelamento"`
	EmployeeResponsavelID *int64 `json:"employee_responsavel_id,omitempty"`
}

// BipReactivatedEvent published for every bip of a reactivate cascade
type BipReactivatedEvent struct {
	BaseEvent
	BipID        int64  `json:"bip_id"`
	TriggerBipID int64  `json:"trigger_bip_id"`
	Status       string `json:"status"`
}

// BipUnmatchedEvent published when a pending bip outlives the reconcile window
type BipUnmatchedEvent struct {
	BaseEvent
	BipID         int64     `json:"bip_id"`
	EAN           string    `json:"ean"`
	EventDate     time.Time `json:"event_date"`
	BipPriceCents int64     `json:"bip_price_cents"`
	EquipmentID   *int64    `json:"equipment_id,omitempty"`
}

// SaleRecordedEvent is produced by the ERP sync for every sale line
type SaleRecordedEvent struct {
	BaseEvent
	ProductID          string    `json:"product_id"`
	ProductDescription *string   `json:"product_description,omitempty"`
	SellDate           time.Time `json:"sell_date"`
	SellValueCents     int64     `json:"sell_value_cents"`
	DiscountCents      int64     `json:"discount_cents"`
	NumCupomFiscal     string    `json:"num_cupom_fiscal"`
	PointOfSaleCode    *string   `json:"point_of_sale_code,omitempty"`
}

// SaleCancelledEvent is produced by the ERP sync when a coupon line is voided
type SaleCancelledEvent struct {
	BaseEvent
	ProductID      string    `json:"product_id"`
	SellDate       time.Time `json:"sell_date"`
	NumCupomFiscal string    `json:"num_cupom_fiscal"`
}
