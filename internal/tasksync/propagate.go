package tasksync

import (
	"context"
	"errors"

	"github.com/Jayphen/fragsync/internal/statusmap"
	"github.com/Jayphen/fragsync/internal/types"
)

// PropagateStatus moves the task's tracker issue to a status matching
// status. It returns immediately; the tracker calls run in the background
// under their own timeout and any failure is only logged.
func (s *Service) PropagateStatus(task types.Task, status types.Status) {
	if task.TrackerKey == "" {
		s.log.WithTask(task.ID).Debug("task not linked to tracker, skipping propagation")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.propagate(ctx, task, status)
	}()
}

func (s *Service) propagate(ctx context.Context, task types.Task, status types.Status) {
	log := s.log.WithTask(task.ID).
		WithTrackerKey(task.TrackerKey).
		WithStatus(string(status))

	tracker, err := s.tracker()
	if err != nil {
		if errors.Is(err, types.ErrNotConfigured) {
			log.Debug("tracker not configured, skipping propagation")
		} else {
			log.WithError(err).Warn("tracker unavailable, status not propagated")
		}
		return
	}

	transitions, err := tracker.ListTransitions(ctx, task.TrackerKey)
	if err != nil {
		log.WithError(err).Warn("failed to list tracker transitions")
		return
	}

	names := statusmap.TransitionNames(transitions)
	transition, ok := statusmap.SelectTransition(status, transitions)
	if !ok {
		log.WithTransitions(names).
			WithError(types.ErrNoMatchingTransition).
			Warn("no tracker transition matches status")
		return
	}

	log = log.WithField("transition", transition.TargetName())
	if err := tracker.ExecuteTransition(ctx, task.TrackerKey, transition.ID); err != nil {
		log.WithTransitions(names).
			WithError(err).
			Warn("tracker rejected status transition")
		return
	}

	log.Info("propagated status to tracker")
}
