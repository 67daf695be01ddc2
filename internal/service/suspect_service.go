package service

import (
	"context"
	"errors"
	"fmt"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"go.uber.org/zap"
)

// SuspectService numbers suspects behind cancelled bips
type SuspectService struct {
	repo   SuspectRepository
	logger *zap.Logger
}

// NewSuspectService creates a new suspect service
func NewSuspectService(repo SuspectRepository) *SuspectService {
	return &SuspectService{repo: repo, logger: util.GetLogger()}
}

// CreateSuspectRequest assigns one identification number to a group of bips.
type CreateSuspectRequest struct {
	BipIDs               []int64 `json:"bip_ids" binding:"required,min=1,dive,min=1"`
	IdentificationNumber *int    `json:"identification_number" binding:"omitempty,min=1"`
	Notes                *string `json:"notes"`
}

// NextNumber returns the number a new identification would receive.
func (s *SuspectService) NextNumber(ctx context.Context) (int, error) {
	return s.repo.NextSuspectNumber(ctx)
}

// Identify records an identification for every bip in req. Each bip must be
// cancelled and not identified before. Without an explicit number the next
// free one is allocated under an advisory lock.
func (s *SuspectService) Identify(ctx context.Context, req *CreateSuspectRequest, createdBy *int64) ([]models.SuspectIdentification, error) {
	ctx, span := util.StartSpan(ctx, "SuspectService.Identify")
	defer span.End()

	ids := uniqueIDs(req.BipIDs)
	if len(ids) == 0 {
		return nil, validationError("bip_ids_required", "Informe ao menos uma bipagem")
	}

	var created []models.SuspectIdentification
	err := s.repo.WithTx(ctx, func(tx store.TxOps) error {
		if err := tx.LockSuspectNumbers(ctx); err != nil {
			return fmt.Errorf("failed to lock suspect numbers: %w", err)
		}

		for _, id := range ids {
			bip, err := tx.LockBip(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return ErrBipNotFound
			}
			if err != nil {
				return err
			}
			if bip.Status != models.BipStatusCancelled {
				return ErrSuspectBipNotCancelled
			}
		}

		identified, err := tx.SuspectIdentifiedBipIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(identified) > 0 {
			return ErrAlreadyIdentified
		}

		number := 0
		if req.IdentificationNumber != nil {
			number = *req.IdentificationNumber
		} else if number, err = tx.NextSuspectNumber(ctx); err != nil {
			return err
		}

		created = make([]models.SuspectIdentification, 0, len(ids))
		for _, id := range ids {
			si := models.SuspectIdentification{
				IdentificationNumber: number,
				BipID:                id,
				Notes:                req.Notes,
				CreatedBy:            createdBy,
			}
			if err := tx.CreateSuspectIdentification(ctx, &si); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return ErrAlreadyIdentified
				}
				return fmt.Errorf("failed to create identification for bip %d: %w", id, err)
			}
			created = append(created, si)
		}
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	s.logger.Info("Suspect identified",
		zap.Int("identification_number", created[0].IdentificationNumber),
		zap.Int("bips", len(created)))
	return created, nil
}

// SuspectListQuery holds the identification listing filters.
type SuspectListQuery struct {
	Page                 int  `form:"page" json:"page"`
	Limit                int  `form:"limit" json:"limit"`
	IdentificationNumber *int `form:"identification_number" json:"identification_number,omitempty"`
}

// SuspectListResult is one listing page.
type SuspectListResult struct {
	Data       []models.SuspectIdentificationItem `json:"data"`
	Pagination Pagination                         `json:"pagination"`
	Filters    SuspectListQuery                   `json:"filters"`
}

// List returns one page of identifications.
func (s *SuspectService) List(ctx context.Context, q *SuspectListQuery) (*SuspectListResult, error) {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit)

	items, total, err := s.repo.ListSuspectIdentifications(ctx, store.SuspectFilter{
		IdentificationNumber: q.IdentificationNumber,
		Limit:                q.Limit,
		Offset:               offset(q.Page, q.Limit),
	})
	if err != nil {
		return nil, err
	}

	return &SuspectListResult{
		Data:       items,
		Pagination: NewPagination(q.Page, q.Limit, total),
		Filters:    *q,
	}, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
