package state

import (
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"roundledger/storage"
)

// Manager reads and writes RLP-encoded ledger state. Keys are hashed with
// keccak256 before they reach the database.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var paramPrefix = []byte("param:")

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func prefixedKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// ParamStoreKey returns the logical key used for a named parameter.
func ParamStoreKey(name string) []byte {
	return prefixedKey(paramPrefix, []byte(name))
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Writer stages writes for a single atomic batch. Reads through a Writer
// observe its own staged values.
type Writer struct {
	m       *Manager
	batch   storage.Batch
	pending map[string][]byte
}

// Update runs fn against a fresh Writer and commits its batch when fn
// returns nil. Nothing is written when fn fails.
func (m *Manager) Update(fn func(w *Writer) error) error {
	w := &Writer{m: m, batch: m.db.NewBatch(), pending: make(map[string][]byte)}
	if err := fn(w); err != nil {
		return err
	}
	if w.batch.Len() == 0 {
		return nil
	}
	return w.batch.Write()
}

func (w *Writer) get(hashed []byte) ([]byte, error) {
	if data, ok := w.pending[string(hashed)]; ok {
		return data, nil
	}
	return w.m.get(hashed)
}

func (w *Writer) putRaw(hashed []byte, data []byte) error {
	w.pending[string(hashed)] = data
	w.batch.Put(hashed, data)
	return nil
}

// KVPut stages the RLP encoding of value under key.
func (w *Writer) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return w.putRaw(kvKey(key), encoded)
}

// KVGet decodes the value under key, preferring staged writes.
func (w *Writer) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := w.get(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeValue(data, out)
}

// KVAppendUint64 appends value to the sorted uint64 list stored under key.
// Values already present are ignored.
func (w *Writer) KVAppendUint64(key []byte, value uint64) error {
	var list []uint64
	if _, err := w.KVGet(key, &list); err != nil {
		return err
	}
	idx := 0
	for idx < len(list) && list[idx] < value {
		idx++
	}
	if idx < len(list) && list[idx] == value {
		return nil
	}
	list = append(list, 0)
	copy(list[idx+1:], list[idx:])
	list[idx] = value
	return w.KVPut(key, list)
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	return m.Update(func(w *Writer) error {
		return w.KVPut(key, value)
	})
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeValue(data, out)
}

// KVGetList decodes the list stored under key. Missing keys yield an empty
// slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}

func decodeValue(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// ParamStoreSet stores a raw parameter value.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	if name == "" {
		return fmt.Errorf("params: name must not be empty")
	}
	return m.KVPut(ParamStoreKey(name), value)
}

// ParamStoreGet loads a raw parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("params: name must not be empty")
	}
	var value []byte
	ok, err := m.KVGet(ParamStoreKey(name), &value)
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}
