package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

var mergeDate = time.Date(2030, 4, 1, 0, 0, 0, 0, time.UTC)

func shiftOf(id, owner int64, start, end string) *domain.Shift {
	return &domain.Shift{
		ID:         id,
		EmployeeID: owner,
		Date:       mergeDate,
		StartTime:  domain.MustParseTimeOfDay(start),
		EndTime:    domain.MustParseTimeOfDay(end),
		Version:    1,
	}
}

func TestMerge_NoExisting(t *testing.T) {
	out := Merge(nil, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("09:00", "18:00"), SourceEmployeeID: 1})

	require.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, int64(0), out.Shift.ID)
	assert.Equal(t, int64(2), out.Shift.EmployeeID)
	assert.Equal(t, "09:00-18:00", out.Shift.TimeRange())
	assert.True(t, out.Shift.Modified)
	require.NotNil(t, out.Shift.SourceEmployeeID)
	assert.Equal(t, int64(1), *out.Shift.SourceEmployeeID)
}

func TestMerge_SameOwnerHasNoProvenance(t *testing.T) {
	out := Merge(nil, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("09:00", "18:00"), SourceEmployeeID: 2})
	assert.Nil(t, out.Shift.SourceEmployeeID)
}

func TestMerge_ContainedLeavesExistingUntouched(t *testing.T) {
	existing := shiftOf(5, 2, "09:00", "18:00")

	out := Merge(existing, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("10:00", "12:00"), SourceEmployeeID: 1})

	assert.Equal(t, ActionUnchanged, out.Action)
	assert.Same(t, existing, out.Shift)
	assert.False(t, existing.Modified)
	assert.Nil(t, existing.SourceEmployeeID)
	assert.Equal(t, "09:00-18:00", existing.TimeRange())
}

func TestMerge_Expands(t *testing.T) {
	tests := []struct {
		name     string
		existing *domain.Shift
		incoming Span
		want     string
	}{
		{name: "adjacent before", existing: shiftOf(5, 2, "20:00", "23:00"), incoming: span("18:00", "20:00"), want: "18:00-23:00"},
		{name: "adjacent after", existing: shiftOf(5, 2, "09:00", "12:00"), incoming: span("12:00", "15:00"), want: "09:00-15:00"},
		{name: "overlap", existing: shiftOf(5, 2, "09:00", "12:00"), incoming: span("11:00", "14:00"), want: "09:00-14:00"},
		{name: "covers", existing: shiftOf(5, 2, "10:00", "11:00"), incoming: span("09:00", "12:00"), want: "09:00-12:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Merge(tt.existing, Incoming{EmployeeID: 2, Date: mergeDate, Span: tt.incoming, SourceEmployeeID: 1})

			require.Equal(t, ActionExpanded, out.Action)
			assert.Equal(t, tt.existing.ID, out.Shift.ID)
			assert.Equal(t, tt.existing.Version, out.Shift.Version)
			assert.Equal(t, tt.want, out.Shift.TimeRange())
			assert.True(t, out.Shift.Modified)
			require.NotNil(t, out.Shift.SourceEmployeeID)
			assert.Equal(t, int64(1), *out.Shift.SourceEmployeeID)
			// 原对象不变
			assert.False(t, tt.existing.Modified)
		})
	}
}

func TestMerge_DisjointCreatesNewShift(t *testing.T) {
	out := Merge(shiftOf(5, 2, "06:00", "08:00"), Incoming{EmployeeID: 2, Date: mergeDate, Span: span("12:00", "18:00")})

	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, int64(0), out.Shift.ID)
	assert.Equal(t, "12:00-18:00", out.Shift.TimeRange())
}

func TestReconcile(t *testing.T) {
	t.Run("no shifts that day", func(t *testing.T) {
		plan := Reconcile(nil, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("09:00", "18:00"), SourceEmployeeID: 1})
		assert.Equal(t, ActionCreated, plan.Action)
		require.NotNil(t, plan.Upsert)
		assert.Empty(t, plan.Absorbed)
	})

	t.Run("unrelated shift only", func(t *testing.T) {
		plan := Reconcile([]*domain.Shift{shiftOf(5, 2, "06:00", "08:00")}, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("09:00", "18:00")})
		assert.Equal(t, ActionCreated, plan.Action)
		assert.Equal(t, int64(0), plan.Upsert.ID)
	})

	t.Run("contained", func(t *testing.T) {
		plan := Reconcile([]*domain.Shift{shiftOf(5, 2, "09:00", "18:00")}, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("10:00", "11:00")})
		assert.Equal(t, ActionUnchanged, plan.Action)
		assert.Nil(t, plan.Upsert)
		assert.Empty(t, plan.Absorbed)
	})

	t.Run("bridges two shifts", func(t *testing.T) {
		existing := []*domain.Shift{
			shiftOf(7, 2, "14:00", "18:00"),
			shiftOf(5, 2, "09:00", "12:00"),
			shiftOf(8, 2, "20:00", "22:00"),
		}
		plan := Reconcile(existing, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("11:00", "15:00"), SourceEmployeeID: 1})

		require.Equal(t, ActionExpanded, plan.Action)
		assert.Equal(t, int64(5), plan.Upsert.ID)
		assert.Equal(t, "09:00-18:00", plan.Upsert.TimeRange())
		assert.Equal(t, []int64{7}, plan.Absorbed)
		assert.True(t, plan.Upsert.Modified)
	})

	t.Run("ignores other owners and days", func(t *testing.T) {
		other := shiftOf(9, 3, "09:00", "18:00")
		otherDay := shiftOf(10, 2, "09:00", "18:00")
		otherDay.Date = mergeDate.AddDate(0, 0, 1)

		plan := Reconcile([]*domain.Shift{other, otherDay}, Incoming{EmployeeID: 2, Date: mergeDate, Span: span("10:00", "11:00")})
		assert.Equal(t, ActionCreated, plan.Action)
	})
}
