package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/wclient"
)

func healthyServer(t *testing.T, weight, baseLatMs int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","worker_id":"reported-id","base_lat_ms":` +
			strconv.Itoa(baseLatMs) + `,"jitter_ms":0,"capacity":10,"weight":` + strconv.Itoa(weight) + `}`))
	}))
}

func TestProbeOneMarksWorkerOnlineAndUpdatesReportedState(t *testing.T) {
	srv := healthyServer(t, 7, 20)
	defer srv.Close()

	reg := registry.New([]string{srv.URL}, registry.ModeManual)
	wc := wclient.New(time.Second)
	p := New(reg, wc, time.Hour, nil)

	p.probeOne(context.Background(), reg.Workers[0])

	w := reg.Workers[0]
	if !w.Online {
		t.Errorf("expected worker to be marked online after a successful probe")
	}
	if w.ID != "reported-id" {
		t.Errorf("expected worker id to update from the health response, got %q", w.ID)
	}
	if w.ReportedWeight != 7 {
		t.Errorf("expected reported weight 7, got %d", w.ReportedWeight)
	}
	if w.ReportedBaseLatMs != 20 {
		t.Errorf("expected reported base latency 20, got %d", w.ReportedBaseLatMs)
	}
	if reg.Find("reported-id") == nil {
		t.Errorf("expected Find to locate the worker by its new id")
	}
	u, _ := url.Parse(srv.URL)
	if reg.Find(u.Hostname()) == nil {
		t.Errorf("expected Find to still locate the worker by its original host-derived altID")
	}
}

func TestProbeOneMarksWorkerOfflineOnFailure(t *testing.T) {
	reg := registry.New([]string{"http://127.0.0.1:1"}, registry.ModeManual)
	reg.Workers[0].Online = true
	wc := wclient.New(50 * time.Millisecond)
	p := New(reg, wc, time.Hour, nil)

	p.probeOne(context.Background(), reg.Workers[0])

	if reg.Workers[0].Online {
		t.Errorf("expected worker to be marked offline after a failed probe")
	}
	if reg.Workers[0].LastError == "" {
		t.Errorf("expected LastError to be set on a failed probe")
	}
}

func TestProbeAllToleratesOneWorkerFailing(t *testing.T) {
	good := healthyServer(t, 1, 5)
	defer good.Close()

	reg := registry.New([]string{good.URL, "http://127.0.0.1:1"}, registry.ModeManual)
	wc := wclient.New(50 * time.Millisecond)
	p := New(reg, wc, time.Hour, nil)

	p.probeAll(context.Background())

	if !reg.Workers[0].Online {
		t.Errorf("expected the healthy worker to still be marked online")
	}
	if reg.Workers[1].Online {
		t.Errorf("expected the unreachable worker to be marked offline")
	}
}
