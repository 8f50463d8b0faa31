// ABOUTME: Availability probe answering "can this conversation be escalated"
// ABOUTME: Combines a working-hours window with a free-agent check

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/handoff-bridge/internal/config"
)

// AvailabilityProbe answers whether the conversation can be escalated
// right now. Probe failures gate the caller's eligibility decision, not
// chat creation itself.
type AvailabilityProbe interface {
	Check(ctx context.Context) (bool, error)
}

// AgentCounter is what the probe needs from the chat service.
type AgentCounter interface {
	AvailableAgents(ctx context.Context) (int, error)
}

// WorkingHoursProbe reports availability when the current time falls inside
// the configured working hours and at least one agent is free.
type WorkingHoursProbe struct {
	hours  config.AvailabilityConfig
	loc    *time.Location
	agents AgentCounter
	now    func() time.Time
}

// NewWorkingHoursProbe creates a probe from the availability config.
func NewWorkingHoursProbe(hours config.AvailabilityConfig, agents AgentCounter) (*WorkingHoursProbe, error) {
	loc := time.UTC
	if hours.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(hours.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading availability timezone: %w", err)
		}
	}
	return &WorkingHoursProbe{
		hours:  hours,
		loc:    loc,
		agents: agents,
		now:    time.Now,
	}, nil
}

// Check reports whether escalation is currently possible.
func (p *WorkingHoursProbe) Check(ctx context.Context) (bool, error) {
	if !p.withinHours() {
		return false, nil
	}
	count, err := p.agents.AvailableAgents(ctx)
	if err != nil {
		return false, fmt.Errorf("counting available agents: %w", err)
	}
	return count > 0, nil
}

func (p *WorkingHoursProbe) withinHours() bool {
	// 0/0 means no working-hours restriction
	if p.hours.HoursStart == 0 && p.hours.HoursEnd == 0 {
		return true
	}
	hour := p.now().In(p.loc).Hour()
	return hour >= p.hours.HoursStart && hour < p.hours.HoursEnd
}
