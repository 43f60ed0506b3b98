package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
)

var recordPrefix = []byte("r/")

// Pebble stores records keyed by big-endian logical time, so iteration
// order is log order and rewrites of a retried batch are idempotent.
type Pebble struct {
	db *pebble.DB
}

var (
	_ recorder.Sink    = (*Pebble)(nil)
	_ recorder.Resumer = (*Pebble)(nil)
	_ Reader           = (*Pebble)(nil)
)

func OpenPebble(dir string) (*Pebble, error) {
	if dir == "" {
		return nil, errors.New("pebble sink: directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble sink: %w", err)
	}
	return &Pebble{db: db}, nil
}

func recordKey(lt model.LogicalTime) []byte {
	k := make([]byte, len(recordPrefix)+8)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[len(recordPrefix):], uint64(lt))
	return k
}

func keyTime(k []byte) model.LogicalTime {
	return model.LogicalTime(binary.BigEndian.Uint64(k[len(recordPrefix):]))
}

// upperBound is the first key past every record key.
func upperBound() []byte {
	ub := append([]byte(nil), recordPrefix...)
	ub[len(ub)-1]++
	return ub
}

// Append commits the batch atomically with a WAL sync.
func (p *Pebble) Append(_ context.Context, records []model.Record) error {
	b := p.db.NewBatch()
	defer b.Close()

	for _, rec := range records {
		v, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", rec.LogicalTime, err)
		}
		if err := b.Set(recordKey(rec.LogicalTime), v, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (p *Pebble) LastLogicalTime(context.Context) (model.LogicalTime, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: recordPrefix, UpperBound: upperBound()})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return keyTime(iter.Key()), nil
}

func (p *Pebble) Range(_ context.Context, since model.LogicalTime, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: recordKey(since + 1), UpperBound: upperBound()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]model.Record, 0, min(limit, 256))
	for valid := iter.First(); valid && len(out) < limit; valid = iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", keyTime(iter.Key()), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
