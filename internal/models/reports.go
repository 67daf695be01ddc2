package models

// StatusTotal is a count and value grouped by status.
type StatusTotal struct {
	Status     string `db:"status" json:"status"`
	Count      int64  `db:"count" json:"count"`
	ValueCents int64  `db:"value_cents" json:"value_cents"`
}

// ReasonTotal is a count and value of cancelled bips grouped by reason.
type ReasonTotal struct {
	Reason     string `db:"reason" json:"reason"`
	Count      int64  `db:"count" json:"count"`
	ValueCents int64  `db:"value_cents" json:"value_cents"`
}

// DailyResults summarises one business day.
type DailyResults struct {
	Date           string        `json:"date"`
	Bips           []StatusTotal `json:"bips"`
	Sells          []StatusTotal `json:"sells"`
	CancelledBy    []ReasonTotal `json:"cancelled_by_reason"`
	PendingCount   int64         `json:"pending_count"`
	PendingValue   int64         `json:"pending_value_cents"`
	VerifiedRatio  float64       `json:"verified_ratio"`
	CancelledValue int64         `json:"cancelled_value_cents"`
}

// RankingEntry is one row of a ranking table.
type RankingEntry struct {
	Key        string `db:"key" json:"key"`
	Label      string `db:"label" json:"label"`
	Count      int64  `db:"count" json:"count"`
	ValueCents int64  `db:"value_cents" json:"value_cents"`
}

// Rankings groups the dashboard ranking tables.
type Rankings struct {
	ProductsByCancelledValue []RankingEntry `json:"products_by_cancelled_value"`
	EmployeesByCancellations []RankingEntry `json:"employees_by_cancellations"`
	SectorsByPendingValue    []RankingEntry `json:"sectors_by_pending_value"`
}
