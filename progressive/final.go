package progressive

import "context"

// Final sends cmd and waits for the last level of the sequence it starts,
// discarding the coarser frames. Run must be running, and nothing else may
// read Events meanwhile. A failed pass ends the wait with its error.
func Final(ctx context.Context, c *Controller, cmd Command) (Event, error) {
	if err := c.Do(ctx, cmd); err != nil {
		return Event{}, err
	}
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return Event{}, ErrNotRunning
			}
			if ev.Err != nil {
				return ev, ev.Err
			}
			if ev.Final {
				return ev, nil
			}
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
