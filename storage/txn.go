package storage

import (
	"bytes"
	"encoding/binary"
	"sort"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/shamaton/msgpack/v2"
)

// txn collects the writes of one journal in a batch. Reads see the batch's
// own writes before falling back to the database.
type txn struct {
	db      dbm.DB
	batch   dbm.Batch
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newTxn(db dbm.DB) *txn {
	return &txn{
		db:      db,
		batch:   db.NewBatch(),
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (t *txn) get(key []byte) ([]byte, error) {
	if _, ok := t.deletes[string(key)]; ok {
		return nil, nil
	}
	if v, ok := t.writes[string(key)]; ok {
		return v, nil
	}
	return t.db.Get(key)
}

func (t *txn) set(key, value []byte) error {
	if err := t.batch.Set(key, value); err != nil {
		return err
	}
	delete(t.deletes, string(key))
	t.writes[string(key)] = value
	return nil
}

func (t *txn) delete(key []byte) error {
	if err := t.batch.Delete(key); err != nil {
		return err
	}
	delete(t.writes, string(key))
	t.deletes[string(key)] = struct{}{}
	return nil
}

// keys lists the live keys under prefix in ascending order.
func (t *txn) keys(prefix []byte) ([][]byte, error) {
	it, err := t.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]struct{})
	var out [][]byte
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if _, ok := t.deletes[string(k)]; ok {
			continue
		}
		seen[string(k)] = struct{}{}
		out = append(out, append([]byte(nil), k...))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	for k := range t.writes {
		if _, ok := seen[k]; !ok && bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, []byte(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out, nil
}

func (t *txn) commit() error {
	return t.batch.WriteSync()
}

func (t *txn) discard() {
	_ = t.batch.Close()
}

// getValue decodes the msgpack record at key into v.
func (t *txn) getValue(key []byte, v any) (bool, error) {
	bz, err := t.get(key)
	if err != nil || bz == nil {
		return false, err
	}
	return true, msgpack.Unmarshal(bz, v)
}

func (t *txn) setValue(key []byte, v any) error {
	bz, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return t.set(key, bz)
}

func (t *txn) getUint64(key []byte) (uint64, error) {
	bz, err := t.get(key)
	if err != nil || bz == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(bz), nil
}

func (t *txn) setUint64(key []byte, v uint64) error {
	return t.set(key, be64(v))
}
