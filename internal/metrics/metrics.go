package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "station_"

var (
	registerOnce sync.Once

	readingsRecorded   *prometheus.CounterVec
	calculationsTotal  *prometheus.CounterVec
	rolloversApplied   prometheus.Counter
	deviationsFlagged  prometheus.Counter
	overrideCorrection prometheus.Counter
)

// Init registers the reconciliation metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		readingsRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_recorded_total",
				Help: "Meter readings recorded, by source",
			},
			[]string{"source"},
		)
		calculationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pms_calculations_total",
				Help: "PMS calculations by outcome",
			},
			[]string{"result"},
		)
		rolloversApplied = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollover_applied_total",
				Help: "Calculations where meter rollover correction was applied",
			},
		)
		deviationsFlagged = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "deviation_flagged_total",
				Help: "Calculations flagged for deviation review",
			},
		)
		overrideCorrection = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "override_corrections_total",
				Help: "Reading corrections applied with a manager override",
			},
		)

		prometheus.MustRegister(
			readingsRecorded,
			calculationsTotal,
			rolloversApplied,
			deviationsFlagged,
			overrideCorrection,
		)
	})
}

// Reading sources.
const (
	SourceMeasured  = "measured"
	SourceEstimated = "estimated"
)

// Calculation results.
const (
	ResultCalculated = "calculated"
	ResultSkipped    = "skipped"
	ResultUnchanged  = "unchanged"
)

func IncReadingRecorded(source string) {
	if readingsRecorded != nil {
		readingsRecorded.WithLabelValues(source).Inc()
	}
}

func IncCalculation(result string) {
	if calculationsTotal != nil {
		calculationsTotal.WithLabelValues(result).Inc()
	}
}

func IncRolloverApplied() {
	if rolloversApplied != nil {
		rolloversApplied.Inc()
	}
}

func IncDeviationFlagged() {
	if deviationsFlagged != nil {
		deviationsFlagged.Inc()
	}
}

func IncOverrideCorrection() {
	if overrideCorrection != nil {
		overrideCorrection.Inc()
	}
}
