package store

import (
	"strings"
	"time"
)

// BipFilter narrows bip listings. From is inclusive, To exclusive.
type BipFilter struct {
	From         time.Time
	To           time.Time
	Status       string
	NotifiedOnly bool
	Search       string
	SectorID     *int64
	EmployeeID   *int64
	EquipmentID  *int64
	Limit        int
	Offset       int
}

// SellFilter narrows sell listings. From is inclusive, To exclusive.
type SellFilter struct {
	From       time.Time
	To         time.Time
	Status     string
	Product    string
	SectorID   *int64
	EmployeeID *int64
	Limit      int
	Offset     int
}

// SuspectFilter narrows suspect identification listings.
type SuspectFilter struct {
	IdentificationNumber *int
	Limit                int
	Offset               int
}

// whereClause accumulates "?" placeholder conditions; queries are rebound
// to the driver's bindvar style before execution.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(term)) + "%"
}

func (f BipFilter) where() *whereClause {
	w := &whereClause{}
	w.add("b.event_date >= ?", f.From)
	w.add("b.event_date < ?", f.To)
	if f.Status != "" {
		w.add("b.status = ?", f.Status)
	}
	if f.NotifiedOnly {
		w.add("b.notified_at IS NOT NULL")
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		w.add("(b.ean ILIKE ? OR b.product_id ILIKE ? OR b.product_description ILIKE ?)", p, p, p)
	}
	if f.SectorID != nil {
		w.add("e.sector_id = ?", *f.SectorID)
	}
	if f.EmployeeID != nil {
		w.add("b.employee_responsavel_id = ?", *f.EmployeeID)
	}
	if f.EquipmentID != nil {
		w.add("b.equipment_id = ?", *f.EquipmentID)
	}
	return w
}

func (f SellFilter) where() *whereClause {
	w := &whereClause{}
	w.add("s.sell_date >= ?", f.From)
	w.add("s.sell_date < ?", f.To)
	if f.Status != "" {
		w.add("s.status = ?", f.Status)
	}
	if f.Product != "" {
		p := likePattern(f.Product)
		w.add("(s.product_id ILIKE ? OR s.product_description ILIKE ?)", p, p)
	}
	if f.SectorID != nil {
		w.add("e.sector_id = ?", *f.SectorID)
	}
	if f.EmployeeID != nil {
		w.add("b.employee_responsavel_id = ?", *f.EmployeeID)
	}
	return w
}
