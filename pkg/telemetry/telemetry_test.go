package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if err := ProductionConfig().Validate(); err != nil {
		t.Fatalf("production config must validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger2"
		}},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled metrics must still construct: %v", err)
	}

	// None of these may panic without a registry.
	m.RecordRunStarted()
	m.RecordRunCompleted("succeeded", time.Second)
	m.RecordApply("ManagedCluster", "deployed", time.Second)
	m.RecordStatusQueries("ManagedCluster", 60)
	m.RecordPoll("ManagedCluster", "ready", time.Minute)
	m.RecordCheck("control-plane-health", "pass")
	m.RecordFinding("CRITICAL")
	m.RecordError("transient", "NOT_FOUND")
	m.SetResourceReady("ManagedCluster/prod", "ManagedCluster", true)
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "openrollout",
		Path:      "/metrics",
	})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordRunStarted()
	m.RecordApply("Extension", "deployed", 2*time.Second)
	m.RecordStatusQueries("ManagedCluster", 60)
	m.RecordPoll("ManagedCluster", "ready", 30*time.Minute)
	m.RecordCheck("control-plane-health", "passed")
	m.RecordFinding("HIGH")
	m.RecordError("permanent", "APPLY_FAILED")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		"openrollout_runs_started_total",
		"openrollout_applies_total",
		"openrollout_status_queries_total",
		"openrollout_poll_duration_seconds",
		"openrollout_checks_executed_total",
		"openrollout_findings_total",
		"openrollout_errors_by_class_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestLoggerConstruction(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	child := logger.NewComponentLogger("orchestrator").WithRunID("run-1")
	if child == nil {
		t.Fatal("component logger is nil")
	}
}
