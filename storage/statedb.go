package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All consensus-relevant prefixes must be
// declared via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixBalance = registerPrefix("bal:")
	prefixOwner   = registerPrefix("owner:")
	prefixToken   = registerPrefix("token:")
	prefixGame    = registerPrefix("game:")
	prefixSession = registerPrefix("sess:")
	prefixSlot    = registerPrefix("slot:")
	prefixLock    = registerPrefix("lock:")
	prefixBoard   = registerPrefix("board:")
)

// Bookkeeping keys written through the same buffer but kept out of the root.
const (
	prefixReceipt = "rcpt:"
	keyHeight     = "chain:height"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// collect merges persisted entries under prefix with the write buffer.
func (s *StateDB) collect(prefix string, into map[string][]byte) {
	it := s.db.NewIterator([]byte(prefix))
	for it.Next() {
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		into[string(it.Key())] = v
	}
	it.Release()
	for k, v := range s.dirty {
		if strings.HasPrefix(k, prefix) {
			into[k] = v
		}
	}
	for k := range s.deleted {
		if strings.HasPrefix(k, prefix) {
			delete(into, k)
		}
	}
}

// Session ids are zero-padded so prefix scans return them in numeric order.
func sessionKey(prefix, game string, id uint64) string {
	return fmt.Sprintf("%s%s:%020d", prefix, game, id)
}

// ---- Account / balances ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

func (s *StateDB) GetBalance(token, address string) (uint64, error) {
	data, err := s.get(prefixBalance + token + ":" + address)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) SetBalance(token, address string, amount uint64) error {
	key := prefixBalance + token + ":" + address
	if amount == 0 {
		s.del(key)
		return nil
	}
	s.set(key, []byte(strconv.FormatUint(amount, 10)))
	return nil
}

// ---- Owner ----

func (s *StateDB) GetOwner() (string, error) {
	data, err := s.get(prefixOwner + "address")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetOwner(owner string) error {
	s.set(prefixOwner+"address", []byte(owner))
	return nil
}

// ---- Supported tokens ----

func (s *StateDB) GetToken(token string) (*core.SupportedToken, error) {
	var t core.SupportedToken
	if err := s.getJSON(prefixToken+token, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.SupportedToken) error {
	return s.setJSON(prefixToken+t.Token, t)
}

// ListTokens returns the registry in append order.
func (s *StateDB) ListTokens() ([]*core.SupportedToken, error) {
	entries := make(map[string][]byte)
	s.collect(prefixToken, entries)
	out := make([]*core.SupportedToken, 0, len(entries))
	for _, data := range entries {
		var t core.SupportedToken
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ---- Game instances ----

func (s *StateDB) GetGame(id string) (*core.GameInstance, error) {
	var g core.GameInstance
	if err := s.getJSON(prefixGame+id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *StateDB) SetGame(g *core.GameInstance) error {
	return s.setJSON(prefixGame+g.ID, g)
}

// ---- Sessions ----

func (s *StateDB) GetSession(game string, id uint64) (*core.Session, error) {
	var sess core.Session
	if err := s.getJSON(sessionKey(prefixSession, game, id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *StateDB) SetSession(sess *core.Session) error {
	return s.setJSON(sessionKey(prefixSession, sess.Game, sess.ID), sess)
}

func (s *StateDB) GetSlot(game string, id uint64, slot int) (string, error) {
	data, err := s.get(fmt.Sprintf("%s:%d", sessionKey(prefixSlot, game, id), slot))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetSlot(game string, id uint64, slot int, player string) error {
	s.set(fmt.Sprintf("%s:%d", sessionKey(prefixSlot, game, id), slot), []byte(player))
	return nil
}

func (s *StateDB) GetLock(game, player string) (uint64, error) {
	data, err := s.get(prefixLock + game + ":" + player)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) SetLock(game, player string, id uint64) error {
	key := prefixLock + game + ":" + player
	if id == 0 {
		s.del(key)
		return nil
	}
	s.set(key, []byte(strconv.FormatUint(id, 10)))
	return nil
}

func (s *StateDB) GetBoard(game string, id uint64) ([]byte, error) {
	return s.get(sessionKey(prefixBoard, game, id))
}

func (s *StateDB) SetBoard(game string, id uint64, board []byte) error {
	cp := make([]byte, len(board))
	copy(cp, board)
	s.set(sessionKey(prefixBoard, game, id), cp)
	return nil
}

// ---- Receipts ----

func (s *StateDB) GetReceipt(txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := s.getJSON(prefixReceipt+txID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutReceipt stores r and advances the ledger height to r.Height.
func (s *StateDB) PutReceipt(r *core.Receipt) error {
	if err := s.setJSON(prefixReceipt+r.TxID, r); err != nil {
		return err
	}
	s.set(keyHeight, []byte(strconv.FormatInt(r.Height, 10)))
	return nil
}

func (s *StateDB) GetHeight() (int64, error) {
	data, err := s.get(keyHeight)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   copyDirty(s.dirty),
		deleted: copyDeleted(s.deleted),
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]
	s.dirty = copyDirty(snap.dirty)
	s.deleted = copyDeleted(snap.deleted)
	s.snapshots = s.snapshots[:id]
	return nil
}

func copyDirty(src map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(src))
	for k, v := range src {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func copyDeleted(src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under every registered prefix merged with the write
// buffer, sorted by key and length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		s.collect(prefix, merged)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
