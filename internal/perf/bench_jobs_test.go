package perf

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/harborline/ibs/internal/jobs"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/jobs"
)

func TestGLIntegrityThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	book := seeded(t, 1500)
	job := jobs.NewGLIntegrityJob(book, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		findings, err := job.Run(ctx, jobs.GLIntegrityPayload{Month: "2024-03"})
		if err != nil {
			t.Fatalf("integrity run %d: %v", i, err)
		}
		if len(findings) != 0 {
			t.Fatalf("seeded ledger reported unbalanced references: %v", findings)
		}
	}

	// Malformed months count as failures.
	for i := 0; i < 2; i++ {
		if _, err := job.Run(ctx, jobs.GLIntegrityPayload{Month: "March"}); err == nil {
			t.Fatal("expected malformed month to fail")
		}
	}

	book.Lines = append(book.Lines,
		ledger.Line{Company: "ACME", Reference: "DM9999999998", Date: benchDate, Debit: decimal.NewFromInt(5), Credit: decimal.Zero},
		ledger.Line{Company: "ACME", Reference: "DM9999999999", Date: benchDate, Debit: decimal.Zero, Credit: decimal.NewFromInt(7)},
	)
	findings, err := job.Run(ctx, jobs.GLIntegrityPayload{Month: "2024-03"})
	if err != nil {
		t.Fatalf("integrity run with drift: %v", err)
	}
	if len(findings) != 1 || len(findings[0].References) != 2 {
		t.Fatalf("expected two unbalanced references, got %v", findings)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	success := metricValue(t, families, "ibs_jobs_total", map[string]string{"job": jobs.TaskGLIntegrity, "status": "success"})
	failure := metricValue(t, families, "ibs_jobs_total", map[string]string{"job": jobs.TaskGLIntegrity, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("integrity success ratio too low: %f", ratio)
	}
	if drift := metricValue(t, families, "ibs_gl_unbalanced_references_total", map[string]string{"company": "ACME"}); drift != 2 {
		t.Fatalf("unbalanced counter = %f, want 2", drift)
	}
	if mean := histogramMean(t, families, "ibs_job_duration_seconds", map[string]string{"job": jobs.TaskGLIntegrity}); mean > 2.0 {
		t.Fatalf("integrity duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) && fam.GetType() == dto.MetricType_COUNTER {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
