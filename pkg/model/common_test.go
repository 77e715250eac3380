package model

import (
	"testing"
	"time"
)

func TestNewBaseModel(t *testing.T) {
	base := NewBaseModel()

	if base.ID.String() == "" {
		t.Error("ID should not be empty")
	}
	if base.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
	if base.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should not be zero")
	}
}

func TestTimeSpan_Overlaps(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	span := func(startHour, endHour int) TimeSpan {
		return TimeSpan{
			Start: base.Add(time.Duration(startHour) * time.Hour),
			End:   base.Add(time.Duration(endHour) * time.Hour),
		}
	}

	tests := []struct {
		name     string
		a        TimeSpan
		b        TimeSpan
		expected bool
	}{
		{"完全重叠", span(0, 8), span(0, 8), true},
		{"部分重叠", span(0, 8), span(6, 12), true},
		{"首尾相接", span(0, 8), span(8, 16), false},
		{"完全分离", span(0, 8), span(10, 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.expected {
				t.Errorf("Overlaps() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestDateRange_Contains(t *testing.T) {
	dr := DateRange{StartDate: "2025-03-01", EndDate: "2025-03-31"}

	tests := []struct {
		date     string
		expected bool
	}{
		{"2025-03-01", true},
		{"2025-03-15", true},
		{"2025-03-31", true},
		{"2025-02-28", false},
		{"2025-04-01", false},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			if got := dr.Contains(tt.date); got != tt.expected {
				t.Errorf("Contains(%s) = %v, expected %v", tt.date, got, tt.expected)
			}
		})
	}
}
