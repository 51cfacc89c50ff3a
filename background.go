package eventsocket

import (
	"context"

	"github.com/switchkit/eventsocket/wire"
)

// BackgroundJob runs "bgapi <command>" and waits for the BACKGROUND_JOB
// event carrying its result, correlated by a generated Job-UUID.
func (c *Connection) BackgroundJob(ctx context.Context, command string) (*wire.BackgroundJobResult, error) {
	jobUUID, err := newUUID()
	if err != nil {
		return nil, err
	}
	return c.backgroundJob(ctx, command, jobUUID, true)
}

// BackgroundJobWithID is BackgroundJob with a caller-chosen Job-UUID. It
// queues the job and returns without waiting for the result event; the
// caller correlates it from its own event subscription.
func (c *Connection) BackgroundJobWithID(ctx context.Context, command, jobUUID string) error {
	_, err := c.backgroundJob(ctx, command, jobUUID, false)
	return err
}

func (c *Connection) backgroundJob(ctx context.Context, command, jobUUID string, wait bool) (*wire.BackgroundJobResult, error) {
	if err := c.SubscribeEvents(ctx, wire.EventBackgroundJob); err != nil {
		return nil, err
	}

	var w *eventWaiter
	if wait {
		w = c.firstEvent(func(ev *wire.Event) bool {
			return ev.Name() == wire.EventBackgroundJob && ev.JobUUID() == jobUUID
		})
		defer w.cancel()
	}

	if err := c.simpleCommand(ctx, "bgapi "+command+"\nJob-UUID: "+jobUUID); err != nil {
		return nil, err
	}
	if !wait {
		return nil, nil
	}

	select {
	case ev, ok := <-w.ch:
		if !ok || ev == nil {
			return nil, ErrCancelled
		}
		return wire.NewBackgroundJobResult(ev), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
