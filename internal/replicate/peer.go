package replicate

import (
	"context"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
)

// Batch is one page of a peer's changes.
type Batch struct {
	// Changes holds the latest state of each changed record, in ascending
	// sequence order.
	Changes []doc.Record

	// LastSeq is the peer sequence the batch reaches. Requesting changes
	// after it continues where this batch ended.
	LastSeq int64
}

// Result is the receiving side's answer for one pushed record.
type Result struct {
	ID      string
	Rev     doc.Revision
	Outcome store.Outcome

	// Err is set when the record was not accepted. A *DeniedError means
	// the receiver refused it.
	Err error
}

// Peer is the other side of a replication.
type Peer interface {
	// Changes returns records changed after since, at most limit.
	Changes(ctx context.Context, since int64, limit int) (Batch, error)

	// Apply offers records to the peer and returns one Result per record.
	// An error return means the whole request failed.
	Apply(ctx context.Context, recs []doc.Record) ([]Result, error)
}

// Watcher is implemented by peers that announce their commits. Without it a
// live session relies on Config.PollInterval to notice remote changes.
type Watcher interface {
	// Updates signals after peer commits. The channel is closed when ctx
	// ends or the stream breaks.
	Updates(ctx context.Context) (<-chan struct{}, error)
}

// CheckFunc vets an inbound record before a StorePeer applies it.
// A non-nil error denies the record.
type CheckFunc func(doc.Record) error

// StorePeer serves a local store as a Peer. It backs in-process replication
// and the HTTP server.
type StorePeer struct {
	store *store.Store
	check CheckFunc
}

// NewStorePeer wraps s. check may be nil.
func NewStorePeer(s *store.Store, check CheckFunc) *StorePeer {
	return &StorePeer{store: s, check: check}
}

// Changes implements Peer.
func (p *StorePeer) Changes(ctx context.Context, since int64, limit int) (Batch, error) {
	recs, err := p.store.ChangesSince(ctx, since, limit)
	if err != nil {
		return Batch{}, err
	}
	last := since
	if n := len(recs); n > 0 {
		last = recs[n-1].Seq
	}
	return Batch{Changes: recs, LastSeq: last}, nil
}

// Apply implements Peer. Records failing the check are denied with a
// *DeniedError; the rest are applied in one batch, where malformed records
// come back with store.ErrInvalid.
func (p *StorePeer) Apply(ctx context.Context, recs []doc.Record) ([]Result, error) {
	results := make([]Result, len(recs))
	accepted := make([]doc.Record, 0, len(recs))
	index := make([]int, 0, len(recs))

	for i, rec := range recs {
		results[i] = Result{ID: rec.ID, Rev: rec.Rev}
		if p.check != nil {
			if err := p.check(rec); err != nil {
				results[i].Outcome = store.OutcomeRejected
				results[i].Err = &DeniedError{ID: rec.ID, Reason: err.Error()}
				continue
			}
		}
		accepted = append(accepted, rec)
		index = append(index, i)
	}

	if len(accepted) == 0 {
		return results, nil
	}

	applied, err := p.store.ApplyBatch(ctx, accepted, nil)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for j, res := range applied {
		r := &results[index[j]]
		r.Outcome = res.Outcome
		r.Err = res.Err
	}
	return results, nil
}

// Updates implements Watcher using the store's commit signal.
func (p *StorePeer) Updates(ctx context.Context) (<-chan struct{}, error) {
	commits, release := p.store.WatchCommits()
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer release()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-commits:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

var (
	_ Peer    = (*StorePeer)(nil)
	_ Watcher = (*StorePeer)(nil)
)
