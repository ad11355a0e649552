package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// SMA(3) for [10,11,12,13,14,15]:
	// [0] = (10+11+12)/3 = 11
	// [1] = (11+12+13)/3 = 12
	// [2] = (12+13+14)/3 = 13
	// [3] = (13+14+15)/3 = 14

	expected := []float64{11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if sma[i] != v {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	if len(sma) != 0 {
		t.Errorf("expected empty slice, got %d values", len(sma))
	}
}

func TestSMA_NonPositivePeriod(t *testing.T) {
	if got := SMA([]float64{1, 2, 3}, 0); len(got) != 0 {
		t.Errorf("expected empty slice for period 0, got %d values", len(got))
	}
}

func TestMovingAverage_Aligned(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ma := MovingAverage(prices, 3)

	if len(ma) != len(prices) {
		t.Fatalf("expected %d entries, got %d", len(prices), len(ma))
	}

	// Warm-up window: first 2 entries undefined
	for i := 0; i < 2; i++ {
		if _, ok := ma.At(i); ok {
			t.Errorf("ma[%d] should be undefined", i)
		}
	}

	expected := map[int]float64{2: 11, 3: 12, 4: 13, 5: 14}
	for i, want := range expected {
		got, ok := ma.At(i)
		if !ok {
			t.Errorf("ma[%d] should be defined", i)
			continue
		}
		if !almostEqual(got, want, 1e-9) {
			t.Errorf("ma[%d] = %f, want %f", i, got, want)
		}
	}

	if ma.Defined() != 4 {
		t.Errorf("expected 4 defined values, got %d", ma.Defined())
	}
}

func TestMovingAverage_WindowLongerThanSeries(t *testing.T) {
	ma := MovingAverage([]float64{1, 2, 3}, 10)
	if len(ma) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ma))
	}
	if ma.Defined() != 0 {
		t.Errorf("expected no defined values, got %d", ma.Defined())
	}
}

func TestSeries_AtOutOfRange(t *testing.T) {
	s := NewSeries(2)
	if _, ok := s.At(-1); ok {
		t.Error("negative index should be undefined")
	}
	if _, ok := s.At(2); ok {
		t.Error("index past end should be undefined")
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
