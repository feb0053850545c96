package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanDuration(t *testing.T) {
	tests := []struct {
		slug    string
		want    PlanDuration
		wantErr bool
	}{
		{"ad_basic_1w", PlanDuration{1, 'w'}, false},
		{"ad_medium_2w", PlanDuration{2, 'w'}, false},
		{"ad_premium_1m", PlanDuration{1, 'm'}, false},
		{"pro_1y", PlanDuration{1, 'y'}, false},
		{"trial_10d", PlanDuration{10, 'd'}, false},
		{"pro", PlanDuration{}, true},
		{"pro_1h", PlanDuration{}, true},
		{"pro_0m", PlanDuration{}, true},
		{"pro_xm", PlanDuration{}, true},
		{"", PlanDuration{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			got, err := ParsePlanDuration(tt.slug)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtendFrom(t *testing.T) {
	now := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	week := PlanDuration{1, 'w'}

	t.Run("no current expiry", func(t *testing.T) {
		assert.Equal(t, now.AddDate(0, 0, 7), ExtendFrom(now, nil, week))
	})

	t.Run("future expiry stacks", func(t *testing.T) {
		current := now.Add(72 * time.Hour)
		assert.Equal(t, current.AddDate(0, 0, 7), ExtendFrom(now, &current, week))
	})

	t.Run("past expiry restarts from now", func(t *testing.T) {
		current := now.Add(-72 * time.Hour)
		assert.Equal(t, now.AddDate(0, 0, 7), ExtendFrom(now, &current, week))
	})

	t.Run("month uses calendar arithmetic", func(t *testing.T) {
		got := ExtendFrom(now, nil, PlanDuration{1, 'm'})
		assert.Equal(t, now.AddDate(0, 1, 0), got)
	})

	t.Run("never earlier than current", func(t *testing.T) {
		for _, d := range []PlanDuration{{1, 'd'}, {1, 'w'}, {2, 'w'}, {1, 'm'}, {1, 'y'}} {
			for _, offset := range []time.Duration{-48 * time.Hour, 0, time.Hour, 400 * 24 * time.Hour} {
				current := now.Add(offset)
				assert.True(t, ExtendFrom(now, &current, d).After(current), "%s from %s", d, offset)
			}
		}
	})
}

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingStatusPending.CanTransitionTo(BookingStatusConfirmed))
	assert.True(t, BookingStatusPending.CanTransitionTo(BookingStatusCancelled))
	assert.True(t, BookingStatusConfirmed.CanTransitionTo(BookingStatusCompleted))
	assert.True(t, BookingStatusConfirmed.CanTransitionTo(BookingStatusCancelled))

	assert.False(t, BookingStatusPending.CanTransitionTo(BookingStatusCompleted))
	assert.False(t, BookingStatusConfirmed.CanTransitionTo(BookingStatusPending))
	for _, terminal := range []BookingStatus{BookingStatusCancelled, BookingStatusCompleted} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted} {
			assert.False(t, terminal.CanTransitionTo(next))
		}
	}
}

func TestHasProBadge(t *testing.T) {
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, HasProBadge(AgencyTierPro, &future, now))
	assert.False(t, HasProBadge(AgencyTierPro, &past, now))
	assert.False(t, HasProBadge(AgencyTierPro, nil, now))
	assert.False(t, HasProBadge(AgencyTierFree, &future, now))
}

func TestPaymentAuditSetAmounts(t *testing.T) {
	audit := NewPaymentAudit(PaymentEventApplied, "TXN1", SubjectBooking)
	assert.True(t, audit.SetAmounts(58, "USD", 58.004, "USD", 0.01))
	assert.False(t, audit.SetAmounts(58, "USD", 58.02, "USD", 0.01))
	assert.False(t, audit.SetAmounts(58, "USD", 58, "DOP", 0.01))
	assert.False(t, *audit.AmountsMatch)
}
