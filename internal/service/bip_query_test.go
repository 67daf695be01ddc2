package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"bip-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestListBipsFiltersAndPages(t *testing.T) {
	f := newBipFixture(t)
	day := time.Date(2024, 5, 10, 8, 0, 0, 0, f.loc)
	for i := 0; i < 3; i++ {
		f.store.addBip("7891000", day.Add(time.Duration(i)*time.Minute), 100, models.BipStatusPending)
	}
	f.store.addBip("7891000", day, 100, models.BipStatusCancelled)
	f.store.addBip("5550000", day, 100, models.BipStatusPending)
	f.store.addBip("7891000", day.AddDate(0, 0, -1), 100, models.BipStatusPending)

	res, err := f.svc.ListBips(context.Background(), &BipListQuery{
		Limit: 2, DateFrom: "2024-05-10", DateTo: "2024-05-10",
		Status: models.BipStatusPending, Search: "7891",
	})
	require.NoError(t, err)

	assert.Len(t, res.Data, 2)
	assert.Equal(t, int64(3), res.Pagination.Total)
	assert.Equal(t, 1, res.Filters.Page)
	assert.True(t, res.Pagination.HasNextPage)
}

func TestListBipsValidation(t *testing.T) {
	f := newBipFixture(t)

	tests := []struct {
		name string
		q    BipListQuery
		code string
	}{
		{"missing dates", BipListQuery{}, "date_range_required"},
		{"bad status", BipListQuery{DateFrom: "2024-05-10", DateTo: "2024-05-10", Status: "lost"}, "invalid_status"},
		{"short search", BipListQuery{DateFrom: "2024-05-10", DateTo: "2024-05-10", Search: " a "}, "search_too_short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ListBips(context.Background(), &tt.q)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
		})
	}
}

func TestExportBipsWritesWorkbook(t *testing.T) {
	f := newBipFixture(t)
	day := time.Date(2024, 5, 10, 8, 30, 0, 0, f.loc)
	f.store.addBip("7891000100103", day, 2590, models.BipStatusCancelled)
	f.store.addBip("7891000100110", day, 990, models.BipStatusPending)

	var buf bytes.Buffer
	n, err := f.svc.ExportBips(context.Background(), &BipListQuery{DateFrom: "2024-05-10", DateTo: "2024-05-10"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Bipagens")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "EAN", rows[0][1])
	assert.Equal(t, "7891000100103", rows[1][1])
	assert.Equal(t, "2024-05-10 08:30:00", rows[1][2])
	assert.Equal(t, models.BipStatusCancelled, rows[1][7])
	assert.Equal(t, models.MotivoFurto, rows[1][8])
}
