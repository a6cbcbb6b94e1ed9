package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestExposureValid(t *testing.T) {
	if !ExposureFlat.Valid() || !ExposureLong.Valid() {
		t.Error("flat and long should be valid exposures")
	}
	if Exposure("short").Valid() {
		t.Error("short should not be a valid exposure")
	}
	if Exposure("").Valid() {
		t.Error("zero-value Exposure should not be valid")
	}
}

func TestValidateSeries(t *testing.T) {
	tests := []struct {
		name      string
		bars      []Bar
		wantIndex int // -2 means no error expected
	}{
		{"empty", nil, -1},
		{"single bar", []Bar{{Timestamp: day(1), Close: 10}}, -2},
		{"ascending", []Bar{{Timestamp: day(1), Close: 10}, {Timestamp: day(2), Close: 11}}, -2},
		{"zero close", []Bar{{Timestamp: day(1), Close: 10}, {Timestamp: day(2), Close: 0}}, 1},
		{"negative close", []Bar{{Timestamp: day(1), Close: -1}}, 0},
		{"NaN close", []Bar{{Timestamp: day(1), Close: math.NaN()}}, 0},
		{"duplicate timestamp", []Bar{{Timestamp: day(1), Close: 10}, {Timestamp: day(1), Close: 11}}, 1},
		{"descending", []Bar{{Timestamp: day(2), Close: 10}, {Timestamp: day(1), Close: 11}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeries("test", tt.bars)
			if tt.wantIndex == -2 {
				if err != nil {
					t.Fatalf("ValidateSeries returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("ValidateSeries error = %v, want InvalidInput", err)
			}
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *Error", err)
			}
			if de.Index != tt.wantIndex {
				t.Errorf("error index = %d, want %d", de.Index, tt.wantIndex)
			}
		})
	}
}

func TestNullFloatJSON(t *testing.T) {
	type payload struct {
		Sharpe NullFloat `json:"sharpe"`
	}

	out, err := json.Marshal(payload{Sharpe: NullFloat{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"sharpe":null}` {
		t.Errorf("Marshal undefined = %s, want {\"sharpe\":null}", out)
	}

	out, err = json.Marshal(payload{Sharpe: Float(1.5)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"sharpe":1.5}` {
		t.Errorf("Marshal defined = %s, want {\"sharpe\":1.5}", out)
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"sharpe":null}`), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Sharpe.Valid {
		t.Error("null should decode to an undefined NullFloat")
	}
	if err := json.Unmarshal([]byte(`{"sharpe":-0.25}`), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Sharpe.Valid || got.Sharpe.Value != -0.25 {
		t.Errorf("decoded %+v, want {-0.25 true}", got.Sharpe)
	}
}

func TestFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if Float(v).Valid {
			t.Errorf("Float(%v) should be undefined", v)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		err  error
		kind string
	}{
		{InvalidInput("translate", -1, "empty"), "InvalidInput"},
		{DataUnavailable("fetch", cause, "no bars for %s", "ZZZZ"), "DataUnavailable"},
		{DegenerateInput("summarize", "total_return", 0, "starting equity is zero"), "DegenerateInput"},
		{fmt.Errorf("running: %w", InvalidInput("simulate", 3, "bad close")), "InvalidInput"},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.kind)
		}
	}

	err := DataUnavailable("fetch", cause, "no bars")
	if !errors.Is(err, cause) {
		t.Error("DataUnavailable should unwrap to its cause")
	}
}

func TestErrorMessageContext(t *testing.T) {
	msg := InvalidInput("simulate", 4, "close %v is not positive", -2.0).Error()
	if !strings.Contains(msg, "bar 4") || !strings.Contains(msg, "simulate") {
		t.Errorf("message %q should name the op and bar index", msg)
	}

	msg = DegenerateInput("summarize", "total_return", 0, "starting equity is zero").Error()
	if !strings.Contains(msg, "total_return") {
		t.Errorf("message %q should name the metric", msg)
	}
}
