package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

func TestParseDate(t *testing.T) {
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
		err   error
	}{
		{input: "03/10", want: today},
		{input: "3/11", want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{input: " 12/31 ", want: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
		{input: "2026-01-05", want: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		{input: "03/09", err: ErrPastDate},
		{input: "2024-12-31", err: ErrPastDate},
		{input: "02/29", err: ErrInvalidDate},
		{input: "2025/03/11", err: ErrInvalidDate},
		{input: "next monday", err: ErrInvalidDate},
		{input: "", err: ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input, today)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		input      string
		start, end string
		err        error
	}{
		{input: "09:00-18:00", start: "09:00", end: "18:00"},
		{input: " 9:30 - 12:00 ", start: "09:30", end: "12:00"},
		{input: "18:00~24:00", start: "18:00", end: "24:00"},
		{input: "18:00", err: ErrInvalidTimeRange},
		{input: "9-12", err: ErrInvalidTimeRange},
		{input: "25:00-26:00", err: ErrInvalidTimeRange},
		{input: "12:00-12:00", err: ErrEndBeforeStart},
		{input: "18:00-09:00", err: ErrEndBeforeStart},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			start, end, err := ParseTimeRange(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start.String())
			assert.Equal(t, tt.end, end.String())
		})
	}
}

func TestParseConfirmation(t *testing.T) {
	for _, text := range []string{"yes", "Y", " はい ", "OK"} {
		yes, ok := ParseConfirmation(text)
		assert.True(t, ok, text)
		assert.True(t, yes, text)
	}
	for _, text := range []string{"no", "N", "いいえ"} {
		yes, ok := ParseConfirmation(text)
		assert.True(t, ok, text)
		assert.False(t, yes, text)
	}
	_, ok := ParseConfirmation("perhaps")
	assert.False(t, ok)
}

func TestResolveEmployees(t *testing.T) {
	employees := []*domain.Employee{
		{ID: 1, Username: "tsato", FullName: "佐藤 太郎"},
		{ID: 2, Username: "hsato", FullName: "佐藤 花子"},
		{ID: 3, Username: "suzuki", FullName: "鈴木 一郎"},
		{ID: 4, Username: "ann", FullName: "Ann Lee"},
		{ID: 5, Username: "anna", FullName: "Anna Park"},
	}

	ids := func(list []*domain.Employee) []int64 {
		result := make([]int64, 0, len(list))
		for _, e := range list {
			result = append(result, e.ID)
		}
		return result
	}

	tests := []struct {
		name  string
		input string
		want  []int64
		err   string
	}{
		{name: "exact full name ignoring spaces", input: "佐藤花子", want: []int64{2}},
		{name: "full-width space", input: "鈴木　一郎", want: []int64{3}},
		{name: "username", input: "tsato", want: []int64{1}},
		{name: "substring", input: "鈴木", want: []int64{3}},
		{name: "exact beats substring", input: "ann", want: []int64{4}},
		{name: "several separators", input: "太郎、鈴木，Anna Park, 花子", want: []int64{1, 3, 5, 2}},
		{name: "duplicates collapse", input: "鈴木, suzuki", want: []int64{3}},
		{name: "ambiguous", input: "佐藤", err: "multiple employees match 佐藤; please be more specific"},
		{name: "unknown", input: "鈴木, 田中", err: "no matching employee: 田中"},
		{name: "empty", input: " , 、", err: ErrNoEmployeeName.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEmployees(tt.input, employees)
			if tt.err != "" {
				assert.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}
