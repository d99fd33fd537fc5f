package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/reeflab/reefcore/internal/metrics"
	"github.com/reeflab/reefcore/internal/store"
)

// dispatch claims and executes due pending actions in
// (scheduled_time, id) order
func (w *Worker) dispatch(ctx context.Context, now time.Time) error {
	actions, err := w.store.ListDispatchableActions(ctx, now, w.dispatchLimit)
	if err != nil {
		return err
	}

	for i := range actions {
		action := &actions[i]
		if err := w.dispatchOne(ctx, action); err != nil {
			w.logger.Error(err, "failed to dispatch action", "action", action.ID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// dispatchOne claims a single action and runs it through the executor.
// Losing the claim means another dispatcher took it; that is not an error.
func (w *Worker) dispatchOne(ctx context.Context, action *store.DeviceAction) error {
	err := w.store.ClaimAction(ctx, action.ID)
	if errors.Is(err, store.ErrNotClaimed) {
		return nil
	}
	if err != nil {
		return err
	}

	device, err := w.store.GetDevice(ctx, action.DeviceID)
	if errors.Is(err, store.ErrNotFound) {
		return w.finish(ctx, action, nil, errors.New("device not found"))
	}
	if err != nil {
		return err
	}

	result, execErr := w.executor.Execute(ctx, action, device)
	return w.finish(ctx, action, result, execErr)
}

// finish records the terminal status and reflects it on the owning schedule
func (w *Worker) finish(ctx context.Context, action *store.DeviceAction, result map[string]any, execErr error) error {
	executedAt := w.clock.Now()

	status := store.ActionSuccess
	errMsg := ""
	resultJSON := ""
	if execErr != nil {
		status = store.ActionFailed
		errMsg = execErr.Error()
	} else if len(result) > 0 {
		if b, err := json.Marshal(result); err == nil {
			resultJSON = string(b)
		}
	}

	if err := w.store.CompleteAction(ctx, action.ID, status, executedAt, resultJSON, errMsg); err != nil {
		return err
	}
	metrics.RecordDispatch(action.ActionType, status)

	if execErr != nil {
		w.logger.Info("action failed", "action", action.ID, "device", action.DeviceID, "error", errMsg)
	} else {
		w.logger.V(1).Info("action executed", "action", action.ID, "device", action.DeviceID)
	}

	if action.ScheduleID != nil {
		runStatus := store.RunSuccess
		if execErr != nil {
			runStatus = store.RunFailed
		}
		if err := w.store.MarkScheduleRun(ctx, *action.ScheduleID, action.ScheduledTime, runStatus, errMsg); err != nil {
			return err
		}
	}
	return nil
}
