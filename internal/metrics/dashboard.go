package metrics

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MetricsDashboard is a JSON-friendly rollup of the ambient metrics,
// exposed for operators who'd rather not scrape /metrics by hand.
type MetricsDashboard struct {
	Dispatch struct {
		TotalRequests float64 `json:"total_requests"`
		TotalFailures float64 `json:"total_failures"`
	} `json:"dispatch"`

	Handle struct {
		TotalRequests float64 `json:"total_requests"`
		TotalFailures float64 `json:"total_failures"`
		Inflight      int     `json:"inflight"`
	} `json:"handle"`

	Faults struct {
		TotalFirings float64 `json:"total_firings"`
	} `json:"faults"`

	System struct {
		ActiveConnections int `json:"active_connections"`
	} `json:"system"`

	HTTP struct {
		TotalRequests float64 `json:"total_requests"`
		TotalErrors   float64 `json:"total_errors"`
	} `json:"http"`
}

func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if AppMetrics == nil {
		http.Error(w, "Metrics not initialized", http.StatusInternalServerError)
		return
	}

	dashboard := MetricsDashboard{}

	total := getCounterVecSum(AppMetrics.DispatchTotal)
	dashboard.Dispatch.TotalRequests = total
	dashboard.Dispatch.TotalFailures = getCounterVecSumFiltered(AppMetrics.DispatchTotal, "outcome", "fail")

	dashboard.Handle.TotalRequests = getCounterVecSum(AppMetrics.HandleTotal)
	dashboard.Handle.TotalFailures = getCounterVecSumFiltered(AppMetrics.HandleTotal, "outcome", "fail")
	dashboard.Handle.Inflight = int(getGaugeValue(AppMetrics.InflightRequests))

	dashboard.Faults.TotalFirings = getCounterVecSum(AppMetrics.FaultFirings)

	dashboard.System.ActiveConnections = int(getGaugeValue(AppMetrics.ActiveConnections))

	dashboard.HTTP.TotalRequests = getCounterVecSum(HTTPRequestsTotal)
	dashboard.HTTP.TotalErrors = getCounterVecSum(HTTPErrors)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dashboard)
}

func getGaugeValue(gauge prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	gauge.Write(metric)
	return metric.GetGauge().GetValue()
}

func getCounterVecSum(counterVec *prometheus.CounterVec) float64 {
	metricFamilies, _ := prometheus.DefaultGatherer.Gather()
	for _, mf := range metricFamilies {
		if mf.GetName() == getMetricName(counterVec) {
			sum := 0.0
			for _, metric := range mf.GetMetric() {
				sum += metric.GetCounter().GetValue()
			}
			return sum
		}
	}
	return 0
}

// getCounterVecSumFiltered sums only the series whose label matches
// wantValue, used to split dispatch/handle totals by outcome.
func getCounterVecSumFiltered(counterVec *prometheus.CounterVec, labelName, wantValue string) float64 {
	metricFamilies, _ := prometheus.DefaultGatherer.Gather()
	name := getMetricName(counterVec)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		sum := 0.0
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == labelName && label.GetValue() == wantValue {
					sum += metric.GetCounter().GetValue()
				}
			}
		}
		return sum
	}
	return 0
}

func getMetricName(metric prometheus.Collector) string {
	desc := make(chan *prometheus.Desc, 1)
	metric.Describe(desc)
	close(desc)
	for d := range desc {
		// Desc.String() renders as `Desc{fqName: "<name>", ...}`; only the
		// quoted fqName matches a gathered MetricFamily's name.
		s := d.String()
		const prefix = `Desc{fqName: "`
		if !strings.HasPrefix(s, prefix) {
			return ""
		}
		s = s[len(prefix):]
		if end := strings.IndexByte(s, '"'); end >= 0 {
			return s[:end]
		}
		return ""
	}
	return ""
}
