package services

import (
	"context"
	"testing"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReport(t *testing.T) {
	cfg := config.ForTesting()
	svc := NewHealthService(dbtest.New(t), nil, cfg, "")
	svc.SetStartTime(time.Now().Add(-90 * time.Minute))
	svc.SetSchedulerProbe(func() bool { return true })

	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusOK, report.Status)
	assert.Equal(t, defaultVersion, report.Version)
	require.Len(t, report.Dependencies, 2)
	assert.Equal(t, dependencyStatusUp, report.Dependencies[0].Status)
	assert.Equal(t, dependencyStatusDisabled, report.Dependencies[1].Status)
	assert.NotNil(t, report.Metrics.Database)
	assert.True(t, report.Flags.SchedulerRunning)
	assert.Equal(t, "1h 30m", report.UptimeHuman)
	assert.Equal(t, 200, HTTPStatusForOverall(report.Status))
	assert.True(t, svc.Ready(context.Background()))
}

func TestHealthReportWithoutDatabase(t *testing.T) {
	svc := NewHealthService(nil, nil, nil, "2.0.0")
	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusCritical, report.Status)
	assert.Equal(t, "SchoolPulse API", report.Service)
	assert.Equal(t, "unknown", report.Environment)
	assert.Equal(t, 503, HTTPStatusForOverall(report.Status))
	assert.False(t, svc.Ready(context.Background()))
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "0s", humanizeDuration(0))
	assert.Equal(t, "45s", humanizeDuration(45*time.Second))
	assert.Equal(t, "2d 3h", humanizeDuration(51*time.Hour))
}
