package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/selector"
	"trafficshape/internal/lb/wclient"
)

func okWorker(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"worker_id":"ok","message":"Handled request (simulated).","simulated_ms":5}`))
	}))
}

func failingWorker(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
}

func clientFaultWorker(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
}

func testConfig() Config {
	return Config{
		RetryAttempts:    2,
		RequestTimeout:   time.Second,
		DisableOnFail:    time.Minute,
		LatencyEWMAAlpha: 0.2,
	}
}

func TestRequestSucceedsAgainstHealthyWorker(t *testing.T) {
	srv := okWorker(t)
	defer srv.Close()

	reg := registry.New([]string{srv.URL}, registry.ModeManual)
	reg.Workers[0].Online, reg.Workers[0].EffectiveWeight = true, 1
	sel := selector.New(reg)
	wc := wclient.New(time.Second)

	e := New(reg, sel, wc, testConfig(), nil)
	res, err := e.Request(context.Background(), map[string]any{"hello": "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.WorkerStatus != 200 {
		t.Errorf("expected status 200, got %d", res.WorkerStatus)
	}
	if reg.Workers[0].OK != 1 {
		t.Errorf("expected OK counter incremented, got %d", reg.Workers[0].OK)
	}
}

func TestRequestReturnsErrNoEligibleWorkerWhenNoneOnline(t *testing.T) {
	reg := registry.New([]string{"http://offline:8100"}, registry.ModeManual)
	sel := selector.New(reg)
	wc := wclient.New(time.Second)

	e := New(reg, sel, wc, testConfig(), nil)
	_, err := e.Request(context.Background(), nil)
	if err != ErrNoEligibleWorker {
		t.Fatalf("expected ErrNoEligibleWorker, got %v", err)
	}
}

func TestRequest5xxDisablesWorkerAndRetries(t *testing.T) {
	bad := failingWorker(t)
	defer bad.Close()
	good := okWorker(t)
	defer good.Close()

	reg := registry.New([]string{bad.URL, good.URL}, registry.ModeManual)
	for _, w := range reg.Workers {
		w.Online, w.EffectiveWeight = true, 1
	}
	sel := selector.New(reg)
	wc := wclient.New(time.Second)

	e := New(reg, sel, wc, testConfig(), nil)

	// Force the bad worker to be chosen first by giving it all the weight.
	reg.Workers[0].EffectiveWeight = 1000

	res, err := e.Request(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected retry to succeed against the healthy worker, got error: %v", err)
	}
	if res.WorkerStatus != 200 {
		t.Errorf("expected eventual success, got status %d", res.WorkerStatus)
	}
	if reg.Workers[0].Fail != 1 {
		t.Errorf("expected failing worker's Fail counter incremented, got %d", reg.Workers[0].Fail)
	}
	if reg.Workers[0].DisabledUntil.IsZero() {
		t.Errorf("expected failing worker to be placed in a disable window")
	}
}

func TestRequest4xxReturnsWithoutRetry(t *testing.T) {
	srv := clientFaultWorker(t)
	defer srv.Close()

	reg := registry.New([]string{srv.URL}, registry.ModeManual)
	reg.Workers[0].Online, reg.Workers[0].EffectiveWeight = true, 1
	sel := selector.New(reg)
	wc := wclient.New(time.Second)

	e := New(reg, sel, wc, testConfig(), nil)
	res, err := e.Request(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error for a 4xx response: %v", err)
	}
	if res.WorkerStatus != 400 {
		t.Errorf("expected the 4xx status to be surfaced directly, got %d", res.WorkerStatus)
	}
	if reg.Workers[0].Fail != 1 {
		t.Errorf("expected Fail counter incremented for a client fault, got %d", reg.Workers[0].Fail)
	}
	if !reg.Workers[0].DisabledUntil.IsZero() {
		t.Errorf("a client fault must not disable the worker")
	}
}

func TestRequestExhaustsRetriesAgainstAllFailingWorkers(t *testing.T) {
	bad1 := failingWorker(t)
	defer bad1.Close()
	bad2 := failingWorker(t)
	defer bad2.Close()

	reg := registry.New([]string{bad1.URL, bad2.URL}, registry.ModeManual)
	for _, w := range reg.Workers {
		w.Online, w.EffectiveWeight = true, 1
	}
	sel := selector.New(reg)
	wc := wclient.New(time.Second)

	e := New(reg, sel, wc, testConfig(), nil)
	_, err := e.Request(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error when every attempt fails")
	}
	if _, ok := err.(*ErrAllAttemptsFailed); !ok {
		t.Errorf("expected *ErrAllAttemptsFailed, got %T: %v", err, err)
	}
}
