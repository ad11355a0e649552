package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// requestSeries returns the http_requests_total series as label maps with
// their counts.
func requestSeries(t *testing.T, reg *Registry) map[[3]string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	series := map[[3]string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			key := [3]string{labels["method"], labels["path"], labels["status"]}
			series[key] = m.GetCounter().GetValue()
		}
	}
	return series
}

func newBacktestMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/backtests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.PathValue("id")))
	})
	return mux
}

func TestHTTPMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(newBacktestMux())

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/backtests/"+id, nil))
		if w.Code != http.StatusOK || w.Body.String() != id {
			t.Fatalf("GET %s = %d %q", id, w.Code, w.Body.String())
		}
	}

	series := requestSeries(t, reg)
	if len(series) != 1 {
		t.Fatalf("expected one series for three job ids, got %v", series)
	}
	key := [3]string{"GET", "GET /api/v1/backtests/{id}", "2xx"}
	if series[key] != 3 {
		t.Errorf("series %v = %v, want 3 (all: %v)", key, series[key], series)
	}
}

func TestHTTPMiddleware_UnmatchedPathFallsBackToURL(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(newBacktestMux())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/nowhere", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	if got := requestSeries(t, reg)[[3]string{"GET", "/nowhere", "4xx"}]; got != 1 {
		t.Errorf("expected one 4xx request on /nowhere, got %v", requestSeries(t, reg))
	}
}

func TestHTTPMiddleware_StatusRecording(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}, "2xx"},
		{"explicit status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, "5xx"},
		{"first WriteHeader wins", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			w.WriteHeader(http.StatusInternalServerError)
		}, "2xx"},
		{"body before WriteHeader", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("partial"))
			w.WriteHeader(http.StatusInternalServerError)
		}, "2xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			w := httptest.NewRecorder()
			HTTPMiddleware(reg)(tt.handler).ServeHTTP(w, httptest.NewRequest("POST", "/api/test-strategy", nil))

			series := requestSeries(t, reg)
			if got := series[[3]string{"POST", "/api/test-strategy", tt.want}]; got != 1 {
				t.Errorf("expected one %s request, got %v", tt.want, series)
			}
		})
	}
}

func TestHTTPMiddleware_InFlightDuringRequest(t *testing.T) {
	reg := NewRegistry()

	inFlight := func() float64 {
		mfs, _ := reg.Gather()
		for _, mf := range mfs {
			if mf.GetName() == "http_requests_in_flight" {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		return -1
	}

	var during float64
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = inFlight()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))

	if during != 1 {
		t.Errorf("expected 1 in flight during the request, got %v", during)
	}
	if after := inFlight(); after != 0 {
		t.Errorf("expected 0 in flight afterwards, got %v", after)
	}
}
