package session_test

import (
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/game"
	"github.com/tolelom/tolarena/game/ludo"
	"github.com/tolelom/tolarena/game/race"
	"github.com/tolelom/tolarena/internal/testutil"
	"github.com/tolelom/tolarena/oracle"
	"github.com/tolelom/tolarena/storage"
	"github.com/tolelom/tolarena/vm"
	"github.com/tolelom/tolarena/vm/modules/economy"
	"github.com/tolelom/tolarena/vm/modules/session"
)

type env struct {
	t     *testing.T
	state *storage.StateDB
	exec  *vm.Executor
	owner testutil.Key
	now   int64
	nonce map[string]uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	state := testutil.NewStateDB()
	owner := testutil.NewKey(t)
	require.NoError(t, state.SetOwner(owner.Addr))
	_, _, err := economy.UpsertToken(state, core.NativeToken, 250, true)
	require.NoError(t, err)
	return &env{t: t, state: state, exec: vm.NewExecutor(state), owner: owner, now: 1_000, nonce: map[string]uint64{}}
}

func (e *env) run(k testutil.Key, typ core.TxType, payload any) (*vm.Outcome, error) {
	e.t.Helper()
	tx := testutil.SignedTx(e.t, k, typ, e.nonce[k.Addr], payload)
	out, err := e.exec.ExecuteTx(1, e.now, tx)
	if err == nil {
		e.nonce[k.Addr]++
	}
	return out, err
}

func (e *env) must(k testutil.Key, typ core.TxType, payload any) *vm.Outcome {
	e.t.Helper()
	out, err := e.run(k, typ, payload)
	require.NoError(e.t, err)
	return out
}

func (e *env) initGame(id, rules string, timeout int64, oracleAddr string) {
	e.t.Helper()
	e.must(e.owner, core.TxGameInit, core.GameInitPayload{
		ID: id, Rules: rules, MaxRandomNumber: 6, TurnTimeout: timeout, Oracle: oracleAddr,
	})
}

func (e *env) players(n int, stake uint64) []testutil.Key {
	keys := make([]testutil.Key, n)
	for i := range keys {
		keys[i] = testutil.NewKey(e.t)
		testutil.Fund(e.t, e.state, core.NativeToken, keys[i].Addr, stake)
	}
	return keys
}

// openPaid creates a paid session for keys[0] and joins the rest.
func (e *env) openPaid(gameID string, keys []testutil.Key, stake uint64) uint64 {
	e.t.Helper()
	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: gameID, Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(stake),
		RequiredPlayers: uint8(len(keys)),
	})
	id := out.Result["session_id"].(uint64)
	for _, k := range keys[1:] {
		e.must(k, core.TxJoinSession, core.JoinSessionPayload{Game: gameID, SessionID: id})
	}
	return id
}

func (e *env) session(gameID string, id uint64) *core.Session {
	e.t.Helper()
	s, err := e.state.GetSession(gameID, id)
	require.NoError(e.t, err)
	return s
}

func (e *env) balance(addr string) uint64 {
	b, err := e.state.GetBalance(core.NativeToken, addr)
	require.NoError(e.t, err)
	return b
}

func dice(vals ...uint64) []core.RandomNumber {
	out := make([]core.RandomNumber, len(vals))
	for i, v := range vals {
		out[i] = core.RandomNumber{Value: v}
	}
	return out
}

func eventTypes(out *vm.Outcome) []events.EventType {
	var ts []events.EventType
	for _, ev := range out.Events {
		ts = append(ts, ev.Type)
	}
	return ts
}

func TestCreateSession_RoundTrip(t *testing.T) {
	e := newEnv(t)
	e.initGame("ludo-1", ludo.Name, 0, "")
	keys := e.players(1, 100)

	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "ludo-1", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(40)), RequiredPlayers: 4,
	})
	assert.Equal(t, uint64(1), out.Result["session_id"])
	assert.Contains(t, eventTypes(out), events.EventSessionCreated)

	s := e.session("ludo-1", 1)
	assert.Equal(t, uint8(1), s.PlayerCount)
	assert.Equal(t, core.StatusWaiting, s.Status())
	assert.Equal(t, uint64(60), e.balance(keys[0].Addr))
	assert.Equal(t, uint64(40), e.balance(core.EscrowAddress))
}

func TestCreateSession_Validation(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(3, 100)
	tok, amt := testutil.Ptr(core.NativeToken), testutil.Ptr(uint64(1))

	cases := []struct {
		name string
		p    core.CreateSessionPayload
		want error
	}{
		{"three players", core.CreateSessionPayload{Game: "g", Token: tok, Amount: amt, RequiredPlayers: 3}, core.ErrInvalidPlayerCount},
		{"token without amount", core.CreateSessionPayload{Game: "g", Token: tok, RequiredPlayers: 2}, core.ErrWrongInitParams},
		{"neither mode", core.CreateSessionPayload{Game: "g", RequiredPlayers: 2}, core.ErrInvalidGameMode},
		{"both modes", core.CreateSessionPayload{Game: "g", Token: tok, Amount: amt, Players: []string{keys[1].Addr}, RequiredPlayers: 2}, core.ErrInvalidGameMode},
		{"short co-player list", core.CreateSessionPayload{Game: "g", Players: []string{keys[1].Addr}, RequiredPlayers: 4}, core.ErrWrongInitParams},
		{"unsupported token", core.CreateSessionPayload{Game: "g", Token: testutil.Ptr("GEM"), Amount: amt, RequiredPlayers: 2}, core.ErrUnsupportedToken},
		{"unknown game", core.CreateSessionPayload{Game: "nope", Token: tok, Amount: amt, RequiredPlayers: 2}, core.ErrNotInitialized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.run(keys[0], core.TxCreateSession, tc.p)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, uint64(100), e.balance(keys[0].Addr))
		})
	}
}

func TestJoinSession_LocksAndStatus(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	e.initGame("h", race.Name, 0, "")
	keys := e.players(4, 100)

	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(10)), RequiredPlayers: 4,
	})
	id := out.Result["session_id"].(uint64)

	e.must(keys[1], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	_, err := e.run(keys[1], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	require.ErrorIs(t, err, core.ErrPlayerHasSession)

	// One lock per player per game instance; other games are independent.
	_, err = e.run(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(0)), RequiredPlayers: 2,
	})
	require.ErrorIs(t, err, core.ErrPlayerHasSession)
	e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "h", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(0)), RequiredPlayers: 2,
	})

	_, err = e.run(keys[2], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: 99})
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	e.must(keys[2], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	assert.Equal(t, core.StatusWaiting, e.session("g", id).Status())
	e.must(keys[3], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	s := e.session("g", id)
	assert.Equal(t, core.StatusPlaying, s.Status())
	assert.Equal(t, e.now, s.LastMoveAt)

	late := e.players(1, 100)[0]
	_, err = e.run(late, core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	require.ErrorIs(t, err, core.ErrSessionNotWaiting)
	assert.Equal(t, uint64(40), e.balance(core.EscrowAddress))
}

func TestFreeSessionStartsFull(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 0)

	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Players: []string{keys[1].Addr}, RequiredPlayers: 2,
	})
	id := out.Result["session_id"].(uint64)
	assert.Equal(t, core.StatusPlaying, e.session("g", id).Status())

	lock, err := e.state.GetLock("g", keys[1].Addr)
	require.NoError(t, err)
	assert.Equal(t, id, lock)
}

func TestPlay_TurnOrderIsCyclic(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(4, 10)
	id := e.openPaid("g", keys, 10)

	for round := 0; round < 2; round++ {
		for slot := 0; slot < 4; slot++ {
			wrong := keys[(slot+1)%4]
			_, err := e.run(wrong, core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(1)})
			require.ErrorIs(t, err, core.ErrNotPlayerTurn)

			e.must(keys[slot], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(1)})
			s := e.session("g", id)
			assert.Equal(t, uint8((slot+1)%4), s.NextPlayerID)
			assert.Equal(t, uint64(round*4+slot+1), s.Nonce, "rejected moves consume no nonce")
		}
	}
}

func TestPlay_RejectsOutOfRangeRandom(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 10)
	id := e.openPaid("g", keys, 10)

	_, err := e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(7)})
	require.ErrorIs(t, err, core.ErrInvalidRandomNumber)
	s := e.session("g", id)
	assert.Zero(t, s.Nonce)
	assert.Zero(t, s.NextPlayerID)

	_, err = e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "nope", SessionID: id, RandomNumbers: dice(1)})
	require.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestPlay_WaitingSessionRejected(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(1, 10)
	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(10)), RequiredPlayers: 2,
	})
	id := out.Result["session_id"].(uint64)
	_, err := e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(1)})
	require.ErrorIs(t, err, core.ErrSessionNotPlaying)
}

func TestLudoScenario(t *testing.T) {
	e := newEnv(t)
	e.initGame("ludo-1", ludo.Name, 0, "")
	keys := e.players(4, 0)
	id := e.openPaid("ludo-1", keys, 0)
	require.Equal(t, core.StatusPlaying, e.session("ludo-1", id).Status())

	for _, k := range keys {
		e.must(k, core.TxPlay, core.PlayPayload{Game: "ludo-1", SessionID: id, RandomNumbers: dice(6, 2)})
	}

	data, err := e.state.GetBoard("ludo-1", id)
	require.NoError(t, err)
	var b ludo.Board
	require.NoError(t, game.DecodeBoard(data, &b))
	assert.Equal(t, 0, b.Tokens[0][0].Square, "captured by player 1")
	assert.Equal(t, 16, b.Tokens[1][0].Square)
	assert.Equal(t, 29, b.Tokens[2][0].Square)
	assert.Equal(t, 42, b.Tokens[3][0].Square)
}

func TestPaidRaceWinnerPayout(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 1000)
	id := e.openPaid("g", keys, 1000)

	e.must(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(6, 6, 6)})
	e.must(keys[1], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(1)})
	out := e.must(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(6, 6)})
	assert.Contains(t, eventTypes(out), events.EventPayout)
	assert.Contains(t, eventTypes(out), events.EventSessionFinished)

	s := e.session("g", id)
	assert.Equal(t, core.StatusFinished, s.Status())
	require.NotNil(t, s.Winner)
	assert.Equal(t, 0, *s.Winner)

	// 250 bp of a 2000 pool.
	assert.Equal(t, uint64(1950), e.balance(keys[0].Addr))
	assert.Equal(t, uint64(0), e.balance(keys[1].Addr))
	assert.Equal(t, uint64(50), e.balance(core.TreasuryAddress))
	assert.Zero(t, e.balance(core.EscrowAddress))

	for _, k := range keys {
		lock, err := e.state.GetLock("g", k.Addr)
		require.NoError(t, err)
		assert.Zero(t, lock)
	}
	_, err := e.run(keys[1], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: dice(1)})
	require.ErrorIs(t, err, core.ErrSessionNotPlaying)
}

func TestOracleBoundRandomNumbers(t *testing.T) {
	e := newEnv(t)
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	e.initGame("g", race.Name, 0, oracle.Address(priv.PubKey()))
	keys := e.players(2, 0)
	id := e.openPaid("g", keys, 0)

	// Signed for the wrong nonce.
	stale := oracle.Sign(priv, oracle.Binding{Game: "g", SessionID: id, Nonce: 2}, 3)
	_, err = e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: []core.RandomNumber{stale}})
	require.ErrorIs(t, err, core.ErrInvalidRandomNumber)

	good := oracle.Sign(priv, oracle.Binding{Game: "g", SessionID: id, Nonce: 1}, 3)
	e.must(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: []core.RandomNumber{good}})

	// Replaying the same signed value for the next turn fails.
	_, err = e.run(keys[1], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, RandomNumbers: []core.RandomNumber{good}})
	require.ErrorIs(t, err, core.ErrInvalidRandomNumber)
}

func TestOwnerRelaysTurn(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 0)
	id := e.openPaid("g", keys, 0)

	_, err := e.run(keys[1], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, AsOwner: true, Player: keys[0].Addr, RandomNumbers: dice(1)})
	require.ErrorIs(t, err, core.ErrNotOwner)

	_, err = e.run(e.owner, core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, AsOwner: true, Player: keys[1].Addr, RandomNumbers: dice(1)})
	require.ErrorIs(t, err, core.ErrNotPlayerTurn)

	e.must(e.owner, core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, AsOwner: true, Player: keys[0].Addr, RandomNumbers: dice(1)})
	assert.Equal(t, uint8(1), e.session("g", id).NextPlayerID)
}

func TestOwnerFinish(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(4, 300)
	id := e.openPaid("g", keys, 300)

	_, err := e.run(keys[0], core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id})
	require.ErrorIs(t, err, core.ErrNotOwner)
	_, err = e.run(e.owner, core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id, WinnerSlot: testutil.Ptr(0), LoserSlot: testutil.Ptr(1)})
	require.ErrorIs(t, err, core.ErrWrongInitParams)
	_, err = e.run(e.owner, core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id, LoserSlot: testutil.Ptr(4)})
	require.ErrorIs(t, err, core.ErrInvalidSlot)

	out := e.must(e.owner, core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id, LoserSlot: testutil.Ptr(3)})
	assert.NotContains(t, eventTypes(out), events.EventForcedFinish)
	for _, k := range keys[:3] {
		assert.Equal(t, uint64(400), e.balance(k.Addr))
	}
	assert.Zero(t, e.balance(keys[3].Addr))
	assert.Zero(t, e.balance(core.EscrowAddress))
}

func TestFinishFailsWholeWhenEscrowShort(t *testing.T) {
	cases := []struct {
		name    string
		players int
		escrow  uint64
		finish  core.OwnerFinishPayload
	}{
		{name: "winner", players: 2, escrow: 150, finish: core.OwnerFinishPayload{WinnerSlot: testutil.Ptr(0)}},
		{name: "loser split", players: 4, escrow: 300, finish: core.OwnerFinishPayload{LoserSlot: testutil.Ptr(3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.initGame("g", race.Name, 0, "")
			keys := e.players(tc.players, 100)
			id := e.openPaid("g", keys, 100)

			// Shrink escrow below the pot so a payout leg cannot be covered.
			require.NoError(t, e.state.SetBalance(core.NativeToken, core.EscrowAddress, tc.escrow))
			root := e.state.ComputeRoot()

			tc.finish.Game, tc.finish.SessionID = "g", id
			_, err := e.run(e.owner, core.TxOwnerFinishSession, tc.finish)
			require.ErrorIs(t, err, core.ErrInsufficientBalance)

			assert.Equal(t, root, e.state.ComputeRoot())
			assert.Equal(t, core.StatusPlaying, e.session("g", id).Status())
			for _, k := range keys {
				lock, err := e.state.GetLock("g", k.Addr)
				require.NoError(t, err)
				assert.Equal(t, id, lock)
				assert.Zero(t, e.balance(k.Addr))
			}
			assert.Equal(t, tc.escrow, e.balance(core.EscrowAddress))
			assert.Zero(t, e.balance(core.TreasuryAddress))
		})
	}
}

func TestOwnerFinishFreeSessionIsForced(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 0)
	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{Game: "g", Players: []string{keys[1].Addr}, RequiredPlayers: 2})
	id := out.Result["session_id"].(uint64)

	out = e.must(e.owner, core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id})
	assert.Contains(t, eventTypes(out), events.EventForcedFinish)
	assert.Equal(t, core.StatusFinished, e.session("g", id).Status())
}

func TestPlayerFinish(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(4, 100)

	// Cancelling a waiting lobby refunds everyone seated.
	out := e.must(keys[0], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(100)), RequiredPlayers: 4,
	})
	id := out.Result["session_id"].(uint64)
	e.must(keys[1], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})
	_, err := e.run(keys[2], core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: "g", SessionID: id})
	require.ErrorIs(t, err, core.ErrInvalidSlot)
	e.must(keys[1], core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: "g", SessionID: id})
	assert.Equal(t, uint64(100), e.balance(keys[0].Addr))
	assert.Equal(t, uint64(100), e.balance(keys[1].Addr))

	// Resignation while playing: the resigning slot loses.
	out = e.must(keys[2], core.TxCreateSession, core.CreateSessionPayload{
		Game: "g", Token: testutil.Ptr(core.NativeToken), Amount: testutil.Ptr(uint64(100)), RequiredPlayers: 2,
	})
	id = out.Result["session_id"].(uint64)
	e.must(keys[3], core.TxJoinSession, core.JoinSessionPayload{Game: "g", SessionID: id})

	_, err = e.run(keys[3], core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: "g", SessionID: id, LoserSlot: testutil.Ptr(0)})
	require.ErrorIs(t, err, core.ErrInvalidSlot)
	_, err = e.run(keys[3], core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: "g", SessionID: id})
	require.ErrorIs(t, err, core.ErrWrongInitParams)

	e.must(keys[3], core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: "g", SessionID: id, LoserSlot: testutil.Ptr(1)})
	assert.Equal(t, uint64(200), e.balance(keys[2].Addr))
	assert.Zero(t, e.balance(keys[3].Addr))
}

func TestClaimTimeout(t *testing.T) {
	e := newEnv(t)
	e.initGame("slow", race.Name, 60, "")
	e.initGame("fast", race.Name, 0, "")
	keys := e.players(2, 50)
	id := e.openPaid("slow", keys, 50)
	anyone := testutil.NewKey(t)

	_, err := e.run(anyone, core.TxClaimTimeout, core.ClaimTimeoutPayload{Game: "fast", SessionID: id})
	require.ErrorIs(t, err, core.ErrTimeoutDisabled)

	e.now += 59
	_, err = e.run(anyone, core.TxClaimTimeout, core.ClaimTimeoutPayload{Game: "slow", SessionID: id})
	require.ErrorIs(t, err, core.ErrTurnNotExpired)

	e.now++
	out := e.must(anyone, core.TxClaimTimeout, core.ClaimTimeoutPayload{Game: "slow", SessionID: id})
	assert.Equal(t, 0, out.Result["loser"])
	assert.Zero(t, e.balance(keys[0].Addr))
	assert.Equal(t, uint64(100), e.balance(keys[1].Addr))
}

func TestDisabledTokenRefundsOnFinish(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", race.Name, 0, "")
	keys := e.players(2, 500)
	id := e.openPaid("g", keys, 500)

	e.must(e.owner, core.TxUpdateSupportedTokens, core.UpdateSupportedTokensPayload{Token: core.NativeToken, FeeBasisPoints: 250, Enabled: false})
	e.must(e.owner, core.TxOwnerFinishSession, core.OwnerFinishPayload{Game: "g", SessionID: id, WinnerSlot: testutil.Ptr(1)})

	assert.Equal(t, uint64(500), e.balance(keys[0].Addr))
	assert.Equal(t, uint64(500), e.balance(keys[1].Addr))
	assert.Zero(t, e.balance(core.TreasuryAddress))
}

func TestGameInit(t *testing.T) {
	e := newEnv(t)
	stranger := testutil.NewKey(t)

	_, err := e.run(stranger, core.TxGameInit, core.GameInitPayload{ID: "g", Rules: race.Name, MaxRandomNumber: 6})
	require.ErrorIs(t, err, core.ErrNotOwner)
	_, err = e.run(e.owner, core.TxGameInit, core.GameInitPayload{ID: "g", Rules: "chess", MaxRandomNumber: 6})
	require.ErrorIs(t, err, core.ErrUnknownRules)
	_, err = e.run(e.owner, core.TxGameInit, core.GameInitPayload{ID: "a:b", Rules: race.Name, MaxRandomNumber: 6})
	require.ErrorIs(t, err, core.ErrWrongInitParams)

	e.initGame("g", race.Name, 0, "")
	_, err = e.run(e.owner, core.TxGameInit, core.GameInitPayload{ID: "g", Rules: race.Name, MaxRandomNumber: 6})
	require.Error(t, err)

	players, err := session.Players(e.state, "g", 1)
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestFailedMoveEmitsNothing(t *testing.T) {
	e := newEnv(t)
	e.initGame("g", ludo.Name, 0, "")
	keys := e.players(2, 0)
	id := e.openPaid("g", keys, 0)

	move, _ := json.Marshal(ludo.MovePayload{Tokens: []int{9}})
	out, err := e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, Move: move, RandomNumbers: dice(6)})
	require.ErrorIs(t, err, core.ErrInvalidMove)
	assert.Nil(t, out)

	before := e.state.ComputeRoot()
	_, err = e.run(keys[0], core.TxPlay, core.PlayPayload{Game: "g", SessionID: id, Move: move, RandomNumbers: dice(6)})
	require.Error(t, err)
	assert.Equal(t, before, e.state.ComputeRoot())
}
