package calibration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// OutcomeSource is the resolved-outcome surface the service reads. Satisfied
// by services.OutcomeService.
type OutcomeSource interface {
	Resolved(ctx context.Context) ([]*models.TrendOutcome, error)
	ResolvedCountByTrend(ctx context.Context) (map[string]int, error)
}

// ReliabilitySource aggregates per-source and per-tier contradiction
// diagnostics over event membership. Satisfied by services.EventService.
type ReliabilitySource interface {
	SourceReliabilityStats(ctx context.Context, minEvents int) ([]*models.SourceReliability, error)
	TierReliabilityStats(ctx context.Context, minEvents int) ([]*models.TierReliability, error)
}

// Service builds calibration reports and raises drift alerts.
type Service struct {
	cfg         *config.CalibrationConfig
	outcomes    OutcomeSource
	reliability ReliabilitySource
	client      *http.Client
	logger      *slog.Logger
}

// NewService creates a calibration Service.
func NewService(cfg *config.CalibrationConfig, outcomes OutcomeSource, reliability ReliabilitySource) *Service {
	return &Service{
		cfg:         cfg,
		outcomes:    outcomes,
		reliability: reliability,
		client:      &http.Client{Timeout: cfg.WebhookTimeout},
		logger:      slog.With("component", "calibration"),
	}
}

// Report builds the current calibration report, flagging trends whose
// resolved-outcome count is below the coverage threshold.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	resolved, err := s.outcomes.Resolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load resolved outcomes: %w", err)
	}
	report := Build(resolved)

	counts, err := s.outcomes.ResolvedCountByTrend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome coverage: %w", err)
	}
	for trendID, n := range counts {
		if n < s.cfg.LowSampleTrendThreshold {
			report.LowSampleTrends = append(report.LowSampleTrends, trendID)
		}
	}
	sort.Strings(report.LowSampleTrends)

	// Advisory diagnostics, gated by the same minimum sample count.
	report.SourceReliability, err = s.reliability.SourceReliabilityStats(ctx, s.cfg.MinSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load source reliability: %w", err)
	}
	report.TierReliability, err = s.reliability.TierReliabilityStats(ctx, s.cfg.MinSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load tier reliability: %w", err)
	}
	return report, nil
}

// CheckDrift builds a report and evaluates the drift thresholds. Below the
// minimum sample count no alerts fire: noise on ten outcomes is not drift.
func (s *Service) CheckDrift(ctx context.Context) ([]Alert, error) {
	report, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}

	alerts := DetectDrift(s.cfg, report)
	for _, alert := range alerts {
		metrics.CalibrationAlerts.WithLabelValues(string(alert.Severity)).Inc()
		s.logger.Warn("Calibration drift detected",
			"severity", alert.Severity, "message", alert.Message)
		if err := s.deliver(ctx, alert); err != nil {
			s.logger.Error("Failed to deliver calibration alert", "error", err)
		}
	}
	return alerts, nil
}

// DetectDrift evaluates the thresholds against a report.
func DetectDrift(cfg *config.CalibrationConfig, report *Report) []Alert {
	if report.SampleCount < cfg.MinSamples {
		return nil
	}

	var alerts []Alert
	switch {
	case report.BrierScore >= cfg.BrierCritical:
		alerts = append(alerts, Alert{
			Severity:   SeverityCritical,
			Message:    fmt.Sprintf("aggregate Brier score %.3f at or above critical %.3f", report.BrierScore, cfg.BrierCritical),
			BrierScore: report.BrierScore,
		})
	case report.BrierScore >= cfg.BrierWarn:
		alerts = append(alerts, Alert{
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("aggregate Brier score %.3f at or above warning %.3f", report.BrierScore, cfg.BrierWarn),
			BrierScore: report.BrierScore,
		})
	}

	for _, bucket := range report.Buckets {
		if bucket.Count < cfg.MinSamples/bucketCount {
			continue
		}
		err := bucket.Error()
		switch {
		case err >= cfg.BucketErrorCritical:
			alerts = append(alerts, Alert{
				Severity: SeverityCritical,
				Message: fmt.Sprintf("bucket [%.1f, %.1f) miscalibrated by %.3f",
					bucket.Low, bucket.High, err),
				BucketLow: bucket.Low, BucketHigh: bucket.High, BucketError: err,
			})
		case err >= cfg.BucketErrorWarn:
			alerts = append(alerts, Alert{
				Severity: SeverityWarning,
				Message: fmt.Sprintf("bucket [%.1f, %.1f) miscalibrated by %.3f",
					bucket.Low, bucket.High, err),
				BucketLow: bucket.Low, BucketHigh: bucket.High, BucketError: err,
			})
		}
	}
	return alerts
}

// deliver posts one alert to the configured webhook with retries. No webhook
// configured means log-only.
func (s *Service) deliver(ctx context.Context, alert Alert) error {
	if s.cfg.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook rejected alert: %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.WebhookMaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

// RunPeriodic checks drift on the given interval until the context ends.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CheckDrift(ctx); err != nil {
				s.logger.Error("Calibration drift check failed", "error", err)
			}
		}
	}
}
