package storage

import (
	"math"
	"testing"
)

func TestNumPages(t *testing.T) {
	tests := []struct {
		name  string
		total int
		limit int
		want  int
	}{
		{name: "empty", total: 0, limit: 10, want: 0},
		{name: "exact fit", total: 20, limit: 10, want: 2},
		{name: "partial last page", total: 21, limit: 10, want: 3},
		{name: "single item", total: 1, limit: 10, want: 1},
		{name: "zero limit", total: 5, limit: 0, want: 0},
		{name: "huge limit", total: 3, limit: math.MaxInt, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NumPages(tt.total, tt.limit); got != tt.want {
				t.Errorf("NumPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	if got := Offset(3, 10); got != 20 {
		t.Errorf("want offset 20, got %d", got)
	}
	if got := Offset(-1, 10); got != 0 {
		t.Errorf("want offset 0 for negative page, got %d", got)
	}
	if got := Offset(3, math.MaxInt/2+1); got != math.MaxInt {
		t.Errorf("want saturated offset %d, got %d", math.MaxInt, got)
	}
	if got := Offset(math.MaxInt, 2); got != math.MaxInt {
		t.Errorf("want saturated offset %d, got %d", math.MaxInt, got)
	}
}

func TestTodoFilter_Match(t *testing.T) {
	done, pending := true, false
	item := TodoItem{IsCompleted: true}

	if !(TodoFilter{}).Match(item) {
		t.Error("empty filter must match every item")
	}
	if !(TodoFilter{IsCompleted: &done}).Match(item) {
		t.Error("completed filter must match completed item")
	}
	if (TodoFilter{IsCompleted: &pending}).Match(item) {
		t.Error("pending filter must not match completed item")
	}
}
