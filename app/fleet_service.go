package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/internal/fleet"
)

// FleetService exposes fleet operations to collaborators (dashboard, CLI):
// status queries, start/stop/force, quarantine clearing, and governor
// access.
type FleetService struct {
	reg     *fleet.Registry
	sched   *fleet.Scheduler
	tracker *fleet.Tracker
	gov     *fleet.Governor
	log     *zap.SugaredLogger
}

// NewFleetService creates the fleet operations facade.
func NewFleetService(reg *fleet.Registry, sched *fleet.Scheduler, tracker *fleet.Tracker, gov *fleet.Governor, log *zap.SugaredLogger) *FleetService {
	return &FleetService{
		reg:     reg,
		sched:   sched,
		tracker: tracker,
		gov:     gov,
		log:     log,
	}
}

// Detectors returns the current state of every detector with decay scores
// refreshed to now.
func (s *FleetService) Detectors() []core.Detector {
	s.tracker.Refresh(time.Now())
	return s.reg.Snapshots()
}

// Detector returns one detector's state.
func (s *FleetService) Detector(name string) (core.Detector, error) {
	s.tracker.Refresh(time.Now())
	return s.reg.Snapshot(name)
}

// Start makes one detector schedulable.
func (s *FleetService) Start(name string) error {
	return s.sched.Start(name)
}

// Stop removes one detector from scheduling.
func (s *FleetService) Stop(name string) error {
	return s.sched.Stop(name)
}

// StartAll activates the fleet (quarantined detectors stay quarantined).
func (s *FleetService) StartAll() {
	s.sched.StartAll()
}

// StopAll deactivates the fleet.
func (s *FleetService) StopAll() {
	s.sched.StopAll()
}

// Force runs one detector immediately, bypassing quarantine, pause and the
// interval table.
func (s *FleetService) Force(ctx context.Context, name string) (core.RunOutcome, error) {
	return s.sched.Force(ctx, name)
}

// ClearQuarantine resets a quarantined detector for future scheduling.
func (s *FleetService) ClearQuarantine(name string) error {
	return s.reg.ClearQuarantine(name)
}

// Governor returns the current governor state.
func (s *FleetService) Governor() core.GovernorState {
	return s.gov.State()
}

// ResetGovernor zeroes the risk proxy and resumes normal dispatch.
func (s *FleetService) ResetGovernor(ctx context.Context) core.GovernorState {
	s.gov.Reset(ctx, time.Now())
	return s.gov.State()
}
