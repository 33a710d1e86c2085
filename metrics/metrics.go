package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "celerity_test_tools"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of orchestrated test environment runs",
	}, []string{
		"run_id",
		"result",
	})

	teardownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "teardowns_total",
		Help:      "Count of dependency stack teardowns",
	})

	readinessDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "readiness_duration_seconds",
		Help:      "Time spent waiting for the dependency stack to become ready",
	}, []string{
		"run_id",
	})

	fixturesProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fixtures_provisioned_total",
		Help:      "Count of fixtures provisioned into the emulated services",
	}, []string{
		"type",
	})

	testExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_exit_code",
		Help:      "Exit code of the most recent test command",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordRun(runID string, result string) {
	runsTotal.WithLabelValues(runID, result).Inc()
}

func RecordTeardown() {
	teardownsTotal.Inc()
}

func RecordReadiness(runID string, waited time.Duration) {
	readinessDuration.WithLabelValues(runID).Set(waited.Seconds())
}

func RecordFixtureProvisioned(fixtureType string) {
	fixturesProvisioned.WithLabelValues(fixtureType).Inc()
}

func RecordTestExitCode(runID string, code int) {
	testExitCode.WithLabelValues(runID).Set(float64(code))
}
