// ABOUTME: Tests for the working-hours availability probe
// ABOUTME: Covers hour windows, timezones, and agent counts

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/handoff-bridge/internal/config"
)

type staticAgents struct {
	count int
	err   error
}

func (a staticAgents) AvailableAgents(ctx context.Context) (int, error) {
	return a.count, a.err
}

func probeAt(t *testing.T, cfg config.AvailabilityConfig, agents AgentCounter, at time.Time) *WorkingHoursProbe {
	t.Helper()
	p, err := NewWorkingHoursProbe(cfg, agents)
	require.NoError(t, err)
	p.now = func() time.Time { return at }
	return p
}

func TestProbe_WithinHoursWithAgents(t *testing.T) {
	cfg := config.AvailabilityConfig{HoursStart: 9, HoursEnd: 17, Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{count: 2}, time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProbe_OutsideHours(t *testing.T) {
	cfg := config.AvailabilityConfig{HoursStart: 9, HoursEnd: 17, Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{count: 2}, time.Date(2026, 8, 26, 20, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbe_EndHourIsExclusive(t *testing.T) {
	cfg := config.AvailabilityConfig{HoursStart: 9, HoursEnd: 17, Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{count: 2}, time.Date(2026, 8, 26, 17, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbe_NoAgentsFree(t *testing.T) {
	cfg := config.AvailabilityConfig{HoursStart: 9, HoursEnd: 17, Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{count: 0}, time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbe_ZeroHoursMeansAlwaysOpen(t *testing.T) {
	cfg := config.AvailabilityConfig{Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{count: 1}, time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProbe_TimezoneShiftsWindow(t *testing.T) {
	// 12:00 UTC is 14:00 in Warsaw during DST; a 13-17 Warsaw window is open.
	cfg := config.AvailabilityConfig{HoursStart: 13, HoursEnd: 17, Timezone: "Europe/Warsaw"}
	p := probeAt(t, cfg, staticAgents{count: 1}, time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	ok, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProbe_AgentCountFailure(t *testing.T) {
	cfg := config.AvailabilityConfig{Timezone: "UTC"}
	p := probeAt(t, cfg, staticAgents{err: errors.New("service down")}, time.Now())

	_, err := p.Check(context.Background())
	assert.Error(t, err)
}

func TestNewWorkingHoursProbe_BadTimezone(t *testing.T) {
	_, err := NewWorkingHoursProbe(config.AvailabilityConfig{Timezone: "Mars/Olympus_Mons"}, staticAgents{})
	assert.Error(t, err)
}
