package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/internal/testutil"
	"github.com/tolelom/tolarena/storage"
)

func TestSnapshotRevert(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetBalance("TOL", "alice", 100))
	root := s.ComputeRoot()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetBalance("TOL", "alice", 0))
	require.NoError(t, s.SetLock("ludo-1", "alice", 3))
	require.NoError(t, s.SetSession(&core.Session{ID: 3, Game: "ludo-1", RequiredPlayers: 2}))
	assert.NotEqual(t, root, s.ComputeRoot())

	require.NoError(t, s.RevertToSnapshot(snap))
	assert.Equal(t, root, s.ComputeRoot())

	bal, err := s.GetBalance("TOL", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
	lock, err := s.GetLock("ludo-1", "alice")
	require.NoError(t, err)
	assert.Zero(t, lock)
	_, err = s.GetSession("ludo-1", 3)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Error(t, s.RevertToSnapshot(snap), "snapshot is consumed")
}

func TestZeroValuesDeleteKeys(t *testing.T) {
	s := testutil.NewStateDB()
	empty := s.ComputeRoot()

	require.NoError(t, s.SetBalance("TOL", "alice", 5))
	require.NoError(t, s.SetLock("ludo-1", "alice", 1))
	require.NoError(t, s.Commit())
	require.NotEqual(t, empty, s.ComputeRoot())

	require.NoError(t, s.SetBalance("TOL", "alice", 0))
	require.NoError(t, s.SetLock("ludo-1", "alice", 0))
	require.NoError(t, s.Commit())
	assert.Equal(t, empty, s.ComputeRoot())
}

func TestReceiptsStayOutOfRoot(t *testing.T) {
	s := testutil.NewStateDB()
	root := s.ComputeRoot()

	require.NoError(t, s.PutReceipt(&core.Receipt{Height: 4, TxID: "abc", Type: core.TxTransfer}))
	assert.Equal(t, root, s.ComputeRoot())

	h, err := s.GetHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(4), h)
	r, err := s.GetReceipt("abc")
	require.NoError(t, err)
	assert.Equal(t, core.TxTransfer, r.Type)
}

func TestListTokensInAppendOrder(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetToken(&core.SupportedToken{Token: "ZED", Index: 0, Enabled: true}))
	require.NoError(t, s.Commit())
	require.NoError(t, s.SetToken(&core.SupportedToken{Token: "ABC", Index: 1}))

	list, err := s.ListTokens()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ZED", list[0].Token)
	assert.Equal(t, "ABC", list[1].Token)
}

func TestRootIndependentOfWriteOrder(t *testing.T) {
	a, b := testutil.NewStateDB(), testutil.NewStateDB()

	require.NoError(t, a.SetSlot("ludo-1", 1, 0, "alice"))
	require.NoError(t, a.SetSlot("ludo-1", 1, 1, "bob"))
	require.NoError(t, a.Commit())

	require.NoError(t, b.SetSlot("ludo-1", 1, 1, "bob"))
	require.NoError(t, b.SetSlot("ludo-1", 1, 0, "alice"))

	assert.Equal(t, a.ComputeRoot(), b.ComputeRoot(), "committed and buffered state hash alike")
}

func TestLevelDBDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")

	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	s := storage.NewStateDB(db)
	require.NoError(t, s.SetOwner("owner"))
	require.NoError(t, s.SetBoard("ludo-1", 7, []byte{0xa1, 0x00}))
	require.NoError(t, s.SetBalance("TOL", "alice", 9))
	require.NoError(t, s.Commit())
	root := s.ComputeRoot()
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	s = storage.NewStateDB(db)

	assert.Equal(t, root, s.ComputeRoot())
	owner, err := s.GetOwner()
	require.NoError(t, err)
	assert.Equal(t, "owner", owner)
	board, err := s.GetBoard("ludo-1", 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0x00}, board)

	_, err = db.Get([]byte("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
