package model

import (
	"errors"
	"testing"
	"time"
)

func bar(minute int, close float64) Candle {
	return Candle{
		OpenTime: time.Date(2026, 1, 1, 0, minute, 0, 0, time.UTC),
		Open:     close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
	}
}

func TestNewWindow_Valid(t *testing.T) {
	w, err := NewWindow("15m", []Candle{bar(0, 100), bar(15, 101), bar(30, 102)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Len() != 3 {
		t.Errorf("Len: got %d, want 3", w.Len())
	}
	if w.Last().Close != 102 {
		t.Errorf("Last close: got %v, want 102", w.Last().Close)
	}
}

func TestNewWindow_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		candles []Candle
		field   string
	}{
		{"empty", nil, "candles"},
		{"zero close", []Candle{bar(0, 100), bar(15, 0)}, "close"},
		{"negative close", []Candle{bar(0, -1)}, "close"},
		{"duplicate open time", []Candle{bar(0, 100), bar(0, 101)}, "open_time"},
		{"out of order", []Candle{bar(15, 100), bar(0, 101)}, "open_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindow("15m", tt.candles)
			var ie *InvalidInputError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if ie.Field != tt.field {
				t.Errorf("field: got %q, want %q", ie.Field, tt.field)
			}
		})
	}
}

func TestNewWindow_CopiesInput(t *testing.T) {
	in := []Candle{bar(0, 100), bar(15, 101)}
	w, err := NewWindow("15m", in)
	if err != nil {
		t.Fatal(err)
	}
	in[0].Close = 999
	if w.At(0).Close != 100 {
		t.Error("window must not alias caller's slice")
	}
}

func TestPositionState(t *testing.T) {
	cases := map[float64]PositionState{0.5: StateLong, -0.5: StateShort, 0: StateFlat}
	for amt, want := range cases {
		if got := (Position{Amount: amt}).State(); got != want {
			t.Errorf("amount %v: got %s, want %s", amt, got, want)
		}
	}
	if (Position{Amount: -0.5}).Size() != 0.5 {
		t.Error("Size should be absolute amount")
	}
}
