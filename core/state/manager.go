package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"questvault/storage"
)

var (
	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("state: read-only transaction")
	// ErrTxClosed is returned when a transaction is used after its callback
	// returned.
	ErrTxClosed = errors.New("state: transaction closed")
)

// Manager serialises every access to the ledger key space. Writers run one at
// a time under Update and see their own uncommitted writes; readers run under
// View and only observe committed state.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Database exposes the backing store.
func (m *Manager) Database() storage.Database {
	return m.db
}

// Update runs fn inside an exclusive transaction. Writes are buffered and
// flushed as a single storage batch when fn returns nil; any error discards
// them so no partial state becomes visible.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newTx(m.db, true)
	defer tx.close()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn against committed state. Writes fail with ErrReadOnly.
func (m *Manager) View(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx := newTx(m.db, false)
	defer tx.close()
	return fn(tx)
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx is the unit of work handed to Update and View callbacks. It is not safe
// for concurrent use and must not escape the callback.
type Tx struct {
	db       storage.Database
	writable bool
	closed   bool
	writes   map[string]pendingWrite
	order    []string
}

func newTx(db storage.Database, writable bool) *Tx {
	return &Tx{db: db, writable: writable, writes: make(map[string]pendingWrite)}
}

func (tx *Tx) close() { tx.closed = true }

func (tx *Tx) commit() error {
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for _, key := range tx.order {
		write := tx.writes[key]
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	return batch.Write()
}

// Writable reports whether the transaction accepts writes.
func (tx *Tx) Writable() bool { return tx != nil && tx.writable }

// Dirty reports the number of keys touched so far.
func (tx *Tx) Dirty() int { return len(tx.order) }

func (tx *Tx) raw(hashed []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if write, ok := tx.writes[string(hashed)]; ok {
		if write.deleted {
			return nil, false, nil
		}
		return write.value, true, nil
	}
	data, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

func (tx *Tx) record(hashed []byte, write pendingWrite) error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	key := string(hashed)
	if _, seen := tx.writes[key]; !seen {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = write
	return nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.record(kvKey(key), pendingWrite{value: encoded})
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := tx.raw(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key. Deleting a missing key is not an error.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return tx.record(kvKey(key), pendingWrite{deleted: true})
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (tx *Tx) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if err := tx.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return tx.KVPut(key, list)
}

// KVRemove drops value from the byte slice list stored under key, deleting the
// key once the list is empty.
func (tx *Tx) KVRemove(key []byte, value []byte) error {
	var list [][]byte
	if err := tx.KVGetList(key, &list); err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	if len(kept) == 0 {
		return tx.KVDelete(key)
	}
	return tx.KVPut(key, kept)
}

// KVGetList decodes the list stored under the supplied key into out, which must
// be a pointer to a slice. Missing keys yield an empty slice.
func (tx *Tx) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	found, err := tx.KVGet(key, out)
	if err != nil {
		return err
	}
	if !found {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}

// LoadBigInt reads an integer counter, returning zero for missing keys.
func (tx *Tx) LoadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	found, err := tx.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return value, nil
}

// WriteBigInt stores a non-negative integer. Zero values delete the key so
// empty balances do not accumulate in the store.
func (tx *Tx) WriteBigInt(key []byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return tx.KVDelete(key)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative value not allowed")
	}
	return tx.KVPut(key, value)
}
