package replicate

import (
	"context"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
)

type passResult struct {
	pulled int
	pushed int

	// more is set when either direction filled a whole batch.
	more bool
}

func (r passResult) moved() bool {
	return r.pulled > 0 || r.pushed > 0
}

// pass runs one exchange: pull, then push.
func (c *Coordinator) pass(ctx context.Context) (passResult, error) {
	var res passResult

	pulled, more, err := c.pull(ctx)
	if err != nil {
		return res, fmt.Errorf("pull: %w", err)
	}
	res.pulled = pulled
	res.more = more

	pushed, more, err := c.push(ctx)
	if err != nil {
		return res, fmt.Errorf("push: %w", err)
	}
	res.pushed = pushed
	res.more = res.more || more

	return res, nil
}

// pull applies one batch of remote changes. The pull checkpoint is committed
// in the same transaction as the applied records.
func (c *Coordinator) pull(ctx context.Context) (int, bool, error) {
	since, err := c.local.Checkpoint(ctx, c.cfg.Endpoint, store.DirectionPull)
	if err != nil {
		return 0, false, err
	}

	batch, err := c.remote.Changes(ctx, since, c.cfg.BatchSize)
	if err != nil {
		return 0, false, err
	}
	if len(batch.Changes) == 0 && batch.LastSeq == since {
		return 0, false, nil
	}

	cp := &store.Checkpoint{
		Endpoint:  c.cfg.Endpoint,
		Direction: store.DirectionPull,
		Seq:       batch.LastSeq,
	}
	results, err := c.local.ApplyBatch(ctx, batch.Changes, cp)
	if err != nil {
		return 0, false, err
	}

	pulled := 0
	for _, r := range results {
		switch r.Outcome {
		case store.OutcomeApplied, store.OutcomeWon:
			pulled++
		case store.OutcomeLost:
			c.logger.Info("kept local revision over remote", "id", r.ID, "remote_rev", r.Rev)
		case store.OutcomeRejected:
			// Log and continue: one corrupt record must not stall the rest.
			c.logger.Warn("rejected remote change", "id", r.ID, "rev", r.Rev, "error", r.Err)
		}
	}

	c.logger.Debug("pulled", "since", since, "last_seq", batch.LastSeq, "received", len(batch.Changes), "applied", pulled)
	return pulled, len(batch.Changes) >= c.cfg.BatchSize, nil
}

// push offers one batch of local changes. The push checkpoint is written only
// after the peer answered, so a failed request is retried from the same
// position.
func (c *Coordinator) push(ctx context.Context) (int, bool, error) {
	since, err := c.local.Checkpoint(ctx, c.cfg.Endpoint, store.DirectionPush)
	if err != nil {
		return 0, false, err
	}

	recs, err := c.local.ChangesSince(ctx, since, c.cfg.BatchSize)
	if err != nil {
		return 0, false, err
	}
	if len(recs) == 0 {
		return 0, false, nil
	}
	last := recs[len(recs)-1].Seq

	send := make([]doc.Record, 0, len(recs))
	for _, rec := range recs {
		ok, err := c.filter.Match(rec)
		if err != nil {
			return 0, false, err
		}
		if ok {
			send = append(send, rec)
		}
	}

	pushed := 0
	if len(send) > 0 {
		results, err := c.remote.Apply(ctx, send)
		if err != nil {
			return 0, false, err
		}
		for _, r := range results {
			if r.Err != nil {
				c.logger.Warn("peer denied document", "id", r.ID, "rev", r.Rev, "error", r.Err)
				c.publish(Event{State: StateDenied, DocID: r.ID, Err: r.Err})
				continue
			}
			if r.Outcome == store.OutcomeApplied || r.Outcome == store.OutcomeWon {
				pushed++
			}
		}
	}

	cp := store.Checkpoint{Endpoint: c.cfg.Endpoint, Direction: store.DirectionPush, Seq: last}
	if err := c.local.SetCheckpoint(ctx, cp); err != nil {
		return 0, false, err
	}

	c.logger.Debug("pushed", "since", since, "last_seq", last, "sent", len(send), "accepted", pushed)
	return pushed, len(recs) >= c.cfg.BatchSize, nil
}
