package indicator

import (
	"math"
	"testing"
)

func TestRSI_StrictlyIncreasing(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	rsi := RSI(prices, 14)

	for i := 0; i < 14; i++ {
		if _, ok := rsi.At(i); ok {
			t.Errorf("rsi[%d] should be undefined during warm-up", i)
		}
	}
	for i := 14; i < len(prices); i++ {
		v, ok := rsi.At(i)
		if !ok {
			t.Fatalf("rsi[%d] should be defined", i)
		}
		if v != 100 {
			t.Errorf("rsi[%d] = %f, want 100 (no losses)", i, v)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("rsi[%d] is not finite", i)
		}
	}
}

func TestRSI_Flat(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 42
	}

	rsi := RSI(prices, 14)
	for i := 14; i < len(prices); i++ {
		if v, _ := rsi.At(i); v != 50 {
			t.Errorf("rsi[%d] = %f, want 50 (no movement)", i, v)
		}
	}
}

func TestRSI_StrictlyDecreasing(t *testing.T) {
	prices := make([]float64, 16)
	for i := range prices {
		prices[i] = 200 - float64(i)
	}

	rsi := RSI(prices, 14)
	if v, _ := rsi.At(15); v != 0 {
		t.Errorf("rsi[15] = %f, want 0 (no gains)", v)
	}
}

func TestRSI_KnownValue(t *testing.T) {
	// Deltas: +2, -1, +2, -1
	// Window of 2 always holds one +2 and one -1:
	// avgGain = 1, avgLoss = 0.5, RS = 2, RSI = 100 - 100/3
	prices := []float64{10, 12, 11, 13, 12}
	rsi := RSI(prices, 2)

	want := 100 - 100.0/3
	for i := 2; i < len(prices); i++ {
		v, ok := rsi.At(i)
		if !ok {
			t.Fatalf("rsi[%d] should be defined", i)
		}
		if !almostEqual(v, want, 1e-9) {
			t.Errorf("rsi[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestRSI_NonPositivePeriod(t *testing.T) {
	rsi := RSI([]float64{1, 2, 3}, 0)
	if rsi.Defined() != 0 {
		t.Errorf("expected no defined values, got %d", rsi.Defined())
	}
}

func TestMomentum(t *testing.T) {
	prices := []float64{100, 102, 104, 110, 99}
	mom := Momentum(prices, 2)

	if len(mom) != len(prices) {
		t.Fatalf("expected %d entries, got %d", len(prices), len(mom))
	}
	for i := 0; i < 2; i++ {
		if _, ok := mom.At(i); ok {
			t.Errorf("mom[%d] should be undefined", i)
		}
	}

	expected := map[int]float64{
		2: 0.04,             // 104/100 - 1
		3: 110.0/102.0 - 1,  // 110/102 - 1
		4: 99.0/104.0 - 1,   // 99/104 - 1
	}
	for i, want := range expected {
		got, ok := mom.At(i)
		if !ok {
			t.Errorf("mom[%d] should be defined", i)
			continue
		}
		if !almostEqual(got, want, 1e-12) {
			t.Errorf("mom[%d] = %f, want %f", i, got, want)
		}
	}
}

func TestMomentum_ZeroBase(t *testing.T) {
	mom := Momentum([]float64{0, 5, 10}, 1)
	if _, ok := mom.At(1); ok {
		t.Error("momentum over a zero base should be undefined")
	}
	if v, ok := mom.At(2); !ok || v != 1 {
		t.Errorf("mom[2] = %v (ok=%v), want 1", v, ok)
	}
}
