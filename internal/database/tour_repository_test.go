package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourlink/marketplace-backend/internal/models"
)

func TestTourRepository_GetTourByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTourRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`FROM tours t WHERE t.id = \$1`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tour, err := repo.GetTourByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, tour)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourRepository_GetDateSlots(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTourRepository(db)
	tourID := uuid.New()
	date := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tour_date_slots`).WithArgs(tourID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tour_id", "slot_date", "start_time", "capacity", "booked"}).
			AddRow(uuid.NewString(), tourID.String(), date, "08:30", nil, 4).
			AddRow(uuid.NewString(), tourID.String(), date.AddDate(0, 0, 7), nil, 10, 9))

	slots, err := repo.GetDateSlots(context.Background(), tourID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Nil(t, slots[0].Capacity)
	assert.True(t, slots[0].HasRoom(100))
	assert.True(t, slots[1].HasRoom(1))
	assert.False(t, slots[1].HasRoom(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourRepository_ListPublishedWithAgency(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTourRepository(db)
	now := time.Now()

	mock.ExpectQuery(`JOIN agencies a ON a.id = t.agency_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "agency_id", "title", "price", "currency", "status", "default_start_time",
			"featured_plan", "featured_expires_at", "created_at", "updated_at",
			"agency_tier", "agency_tier_expires_at",
		}).AddRow(
			uuid.NewString(), uuid.NewString(), "Saona Island", 3500.0, "DOP", "PUBLISHED", nil,
			"ad_premium_1m", now.Add(time.Hour), now, now,
			"PRO", now.Add(24*time.Hour),
		))

	listings, err := repo.ListPublishedWithAgency(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Saona Island", listings[0].Title)
	assert.Equal(t, models.AgencyTierPro, listings[0].AgencyTier)
	assert.True(t, listings[0].IsFeatured(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
