package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bip is one barcode scan captured at a counter scale or scanner.
type Bip struct {
	ID                    int64               `db:"id" json:"id"`
	EAN                   string              `db:"ean" json:"ean"`
	EventDate             time.Time           `db:"event_date" json:"event_date"`
	BipPriceCents         int64               `db:"bip_price_cents" json:"bip_price_cents"`
	ProductID             *string             `db:"product_id" json:"product_id"`
	ProductDescription    *string             `db:"product_description" json:"product_description"`
	BipWeight             decimal.NullDecimal `db:"bip_weight" json:"bip_weight"`
	EquipmentID           *int64              `db:"equipment_id" json:"equipment_id"`
	Status                string              `db:"status" json:"status"`
	MotivoCancelamento    *string             `db:"motivo_cancelamento" json:"motivo_cancelamento"`
	EmployeeResponsavelID *int64              `db:"employee_responsavel_id" json:"employee_responsavel_id"`
	CancelledAt           *time.Time          `db:"cancelled_at" json:"cancelled_at"`
	NotifiedAt            *time.Time          `db:"notified_at" json:"notified_at"`
	VideoURL              *string             `db:"video_url" json:"video_url"`
	ImageURL              *string             `db:"image_url" json:"image_url"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// BipListItem is a Bip denormalised for listing screens.
type BipListItem struct {
	Bip
	EquipmentDescription *string    `db:"equipment_description" json:"equipment_description"`
	EquipmentSectorID    *int64     `db:"equipment_sector_id" json:"equipment_sector_id"`
	EquipmentSectorName  *string    `db:"equipment_sector_name" json:"equipment_sector_name"`
	EmployeeName         *string    `db:"employee_name" json:"employee_name"`
	EmployeeSectorName   *string    `db:"employee_sector_name" json:"employee_sector_name"`
	SellID               *int64     `db:"-" json:"sell_id"`
	SellDate             *time.Time `db:"-" json:"sell_date"`
	NumCupomFiscal       *string    `db:"-" json:"num_cupom_fiscal"`
}

// Sell is a point-of-sale record pulled from the ERP.
type Sell struct {
	ID                 int64     `db:"id" json:"id"`
	ProductID          string    `db:"product_id" json:"product_id"`
	ProductDescription *string   `db:"product_description" json:"product_description"`
	SellDate           time.Time `db:"sell_date" json:"sell_date"`
	SellValueCents     int64     `db:"sell_value_cents" json:"sell_value_cents"`
	DiscountCents      int64     `db:"discount_cents" json:"discount_cents"`
	BipID              *int64    `db:"bip_id" json:"bip_id"`
	NumCupomFiscal     string    `db:"num_cupom_fiscal" json:"num_cupom_fiscal"`
	PointOfSaleCode    *string   `db:"point_of_sale_code" json:"point_of_sale_code"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// GrossCents is the price before discount, comparable to a bip label price.
func (s *Sell) GrossCents() int64 {
	return s.SellValueCents + s.DiscountCents
}

// SellListItem carries the linked bip context shown next to a sale.
type SellListItem struct {
	Sell
	BipEAN       *string    `db:"bip_ean" json:"bip_ean"`
	BipEventDate *time.Time `db:"bip_event_date" json:"bip_event_date"`
	SectorName   *string    `db:"sector_name" json:"sector_name"`
}

// SellMetrics aggregates a filtered sell set.
type SellMetrics struct {
	TotalCount            int64 `db:"total_count" json:"total_count"`
	TotalValueCents       int64 `db:"total_value_cents" json:"total_value_cents"`
	VerifiedCount         int64 `db:"verified_count" json:"verified_count"`
	VerifiedValueCents    int64 `db:"verified_value_cents" json:"verified_value_cents"`
	NotVerifiedCount      int64 `db:"not_verified_count" json:"not_verified_count"`
	NotVerifiedValueCents int64 `db:"not_verified_value_cents" json:"not_verified_value_cents"`
}

// SuspectIdentification ties a cancelled bip to a human-assigned suspect number.
type SuspectIdentification struct {
	ID                   int64     `db:"id" json:"id"`
	IdentificationNumber int       `db:"identification_number" json:"identification_number"`
	BipID                int64     `db:"bip_id" json:"bip_id"`
	Notes                *string   `db:"notes" json:"notes"`
	CreatedBy            *int64    `db:"created_by" json:"created_by"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// SuspectIdentificationItem is the listing row, joined with the bip.
type SuspectIdentificationItem struct {
	SuspectIdentification
	BipEAN                string     `db:"bip_ean" json:"bip_ean"`
	BipEventDate          time.Time  `db:"bip_event_date" json:"bip_event_date"`
	BipPriceCents         int64      `db:"bip_price_cents" json:"bip_price_cents"`
	BipProductDescription *string    `db:"bip_product_description" json:"bip_product_description"`
	MotivoCancelamento    *string    `db:"motivo_cancelamento" json:"motivo_cancelamento"`
	BipVideoURL           *string    `db:"bip_video_url" json:"bip_video_url"`
	BipImageURL           *string    `db:"bip_image_url" json:"bip_image_url"`
	BipCancelledAt        *time.Time `db:"bip_cancelled_at" json:"bip_cancelled_at"`
}

// Bip statuses
const (
	BipStatusPending   = "pending"
	BipStatusVerified  = "verified"
	BipStatusCancelled = "cancelled"
)

// Sell statuses
const (
	SellStatusVerified    = "verified"
	SellStatusNotVerified = "not_verified"
	SellStatusCancelled   = "cancelled"
)

// ValidBipStatus reports whether s is a known bip status.
func ValidBipStatus(s string) bool {
	switch s {
	case BipStatusPending, BipStatusVerified, BipStatusCancelled:
		return true
	}
	return false
}

// ValidSellStatus reports whether s is a known sell status.
func ValidSellStatus(s string) bool {
	switch s {
	case SellStatusVerified, SellStatusNotVerified, SellStatusCancelled:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
