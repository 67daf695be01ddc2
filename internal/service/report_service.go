package service

import (
	"context"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/util"

	"golang.org/x/sync/errgroup"
)

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 50
)

// ReportService builds the read-only dashboard reports
type ReportService struct {
	repo ReportRepository
	loc  *time.Location
}

// NewReportService creates a new report service
func NewReportService(repo ReportRepository, loc *time.Location) *ReportService {
	return &ReportService{repo: repo, loc: loc}
}

// DailyResults summarises bips and sells of one business day.
func (s *ReportService) DailyResults(ctx context.Context, date string) (*models.DailyResults, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.DailyResults")
	defer span.End()

	day, err := ParseDay(date, s.loc)
	if err != nil {
		return nil, err
	}
	from, to := DayWindow(day, s.loc)

	res := &models.DailyResults{Date: date}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.Bips, err = s.repo.BipStatusTotals(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		res.Sells, err = s.repo.SellStatusTotals(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		res.CancelledBy, err = s.repo.CancelledReasonTotals(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, util.SpanError(span, err)
	}

	var verified int64
	for _, t := range res.Bips {
		switch t.Status {
		case models.BipStatusPending:
			res.PendingCount = t.Count
			res.PendingValue = t.ValueCents
		case models.BipStatusVerified:
			verified = t.Count
		case models.BipStatusCancelled:
			res.CancelledValue = t.ValueCents
		}
	}
	if considered := verified + res.PendingCount; considered > 0 {
		res.VerifiedRatio = float64(verified) / float64(considered)
	}
	return res, nil
}

// Rankings returns the top products, employees and sectors for a date range.
func (s *ReportService) Rankings(ctx context.Context, dateFrom, dateTo string, limit int) (*models.Rankings, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Rankings")
	defer span.End()

	from, to, err := ParseDateRange(dateFrom, dateTo, s.loc)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultRankingLimit
	}
	if limit > maxRankingLimit {
		limit = maxRankingLimit
	}

	res := &models.Rankings{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.ProductsByCancelledValue, err = s.repo.TopProductsByCancelledValue(gctx, from, to, limit)
		return err
	})
	g.Go(func() error {
		var err error
		res.EmployeesByCancellations, err = s.repo.TopEmployeesByCancellations(gctx, from, to, limit)
		return err
	})
	g.Go(func() error {
		var err error
		res.SectorsByPendingValue, err = s.repo.TopSectorsByPendingValue(gctx, from, to, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, util.SpanError(span, err)
	}
	return res, nil
}
