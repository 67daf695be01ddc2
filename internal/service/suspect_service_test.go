package service

import (
	"context"
	"testing"
	"time"

	"bip-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyAllocatesSequentialNumbers(t *testing.T) {
	st := newFakeStore()
	svc := NewSuspectService(st)
	ctx := context.Background()
	at := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	b1 := st.addBip("1", at, 100, models.BipStatusCancelled)
	b2 := st.addBip("2", at, 100, models.BipStatusCancelled)
	b3 := st.addBip("3", at, 100, models.BipStatusCancelled)

	next, err := svc.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	user := int64(7)
	created, err := svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{b1.ID, b2.ID, b1.ID}}, &user)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, si := range created {
		assert.Equal(t, 1, si.IdentificationNumber)
		assert.Equal(t, &user, si.CreatedBy)
	}

	next, err = svc.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	created, err = svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{b3.ID}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, created[0].IdentificationNumber)

	list, err := svc.List(ctx, &SuspectListQuery{IdentificationNumber: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Pagination.Total)
}

func intPtr(v int) *int { return &v }

func TestIdentifyWithExplicitNumber(t *testing.T) {
	st := newFakeStore()
	svc := NewSuspectService(st)
	b := st.addBip("1", time.Now(), 100, models.BipStatusCancelled)

	created, err := svc.Identify(context.Background(), &CreateSuspectRequest{
		BipIDs:               []int64{b.ID},
		IdentificationNumber: intPtr(15),
		Notes:                strPtr("camisa azul"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, created[0].IdentificationNumber)
}

func TestIdentifyRejections(t *testing.T) {
	st := newFakeStore()
	svc := NewSuspectService(st)
	ctx := context.Background()

	cancelled := st.addBip("1", time.Now(), 100, models.BipStatusCancelled)
	pending := st.addBip("2", time.Now(), 100, models.BipStatusPending)

	_, err := svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{999}}, nil)
	assert.ErrorIs(t, err, ErrBipNotFound)

	_, err = svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{cancelled.ID, pending.ID}}, nil)
	assert.ErrorIs(t, err, ErrSuspectBipNotCancelled)
	assert.Empty(t, st.suspects)

	_, err = svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{cancelled.ID}}, nil)
	require.NoError(t, err)

	_, err = svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{cancelled.ID}}, nil)
	assert.ErrorIs(t, err, ErrAlreadyIdentified)

	_, err = svc.Identify(ctx, &CreateSuspectRequest{BipIDs: []int64{0, -1}}, nil)
	assert.True(t, IsValidation(err))
}
