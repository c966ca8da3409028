package wallet

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
)

// Wallet holds a key pair bound to one chain and builds signed transactions
// with consecutive nonces.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string

	mu    sync.Mutex
	nonce uint64
	fee   uint64
}

// New creates a Wallet from an existing private key.
func New(chainID string, priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(chainID, priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Address returns the hex-encoded ed25519 public key used as "from".
func (w *Wallet) Address() string {
	return w.pub.Hex()
}

// SetNonce syncs the next nonce with the account on chain.
func (w *Wallet) SetNonce(n uint64) {
	w.mu.Lock()
	w.nonce = n
	w.mu.Unlock()
}

// Nonce returns the nonce the next transaction will carry.
func (w *Wallet) Nonce() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nonce
}

// SetFee sets the native-token fee attached to subsequent transactions.
func (w *Wallet) SetFee(fee uint64) {
	w.mu.Lock()
	w.fee = fee
	w.mu.Unlock()
}

// NewTx creates a signed transaction with the next nonce. A failed build
// does not consume the nonce.
func (w *Wallet) NewTx(typ core.TxType, payload any) (*core.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), w.nonce, w.fee, payload)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", typ, err)
	}
	tx.Sign(w.priv)
	w.nonce++
	return tx, nil
}

// Transfer moves amount of token to another account.
func (w *Wallet) Transfer(token, to string, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, core.TransferPayload{Token: token, To: to, Amount: amount})
}

// UpdateSupportedTokens registers or updates a stake token (owner only).
func (w *Wallet) UpdateSupportedTokens(token string, feeBP uint16, enabled bool) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateSupportedTokens, core.UpdateSupportedTokensPayload{
		Token: token, FeeBasisPoints: feeBP, Enabled: enabled,
	})
}

// Withdraw sweeps treasury fees to beneficiary. A nil amount takes everything.
func (w *Wallet) Withdraw(token, beneficiary string, amount *uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxWithdraw, core.WithdrawPayload{Token: token, Beneficiary: beneficiary, Amount: amount})
}

// InitGame registers a game instance (owner only).
func (w *Wallet) InitGame(p core.GameInitPayload) (*core.Transaction, error) {
	return w.NewTx(core.TxGameInit, p)
}

// CreatePaidSession opens a waiting session staking amount of token per player.
func (w *Wallet) CreatePaidSession(game, token string, amount uint64, required uint8) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateSession, core.CreateSessionPayload{
		Game: game, Token: &token, Amount: &amount, RequiredPlayers: required,
	})
}

// CreateFreeSession seats the creator plus coPlayers, in slot order.
func (w *Wallet) CreateFreeSession(game string, coPlayers []string, required uint8) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateSession, core.CreateSessionPayload{
		Game: game, Players: coPlayers, RequiredPlayers: required,
	})
}

// JoinSession takes the next free slot.
func (w *Wallet) JoinSession(game string, id uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxJoinSession, core.JoinSessionPayload{Game: game, SessionID: id})
}

// Play submits one turn for the wallet's own slot.
func (w *Wallet) Play(game string, id uint64, move any, randoms []core.RandomNumber) (*core.Transaction, error) {
	raw, err := marshalMove(move)
	if err != nil {
		return nil, err
	}
	return w.NewTx(core.TxPlay, core.PlayPayload{Game: game, SessionID: id, Move: raw, RandomNumbers: randoms})
}

// PlayFor relays a turn on behalf of player (owner only).
func (w *Wallet) PlayFor(player, game string, id uint64, move any, randoms []core.RandomNumber) (*core.Transaction, error) {
	raw, err := marshalMove(move)
	if err != nil {
		return nil, err
	}
	return w.NewTx(core.TxPlay, core.PlayPayload{
		Game: game, SessionID: id, Move: raw, RandomNumbers: randoms, AsOwner: true, Player: player,
	})
}

// OwnerFinish force-finishes a session. At most one of winner and loser may
// be non-nil; both nil refunds every stake.
func (w *Wallet) OwnerFinish(game string, id uint64, winner, loser *int) (*core.Transaction, error) {
	return w.NewTx(core.TxOwnerFinishSession, core.OwnerFinishPayload{
		Game: game, SessionID: id, WinnerSlot: winner, LoserSlot: loser,
	})
}

// Resign concedes a playing session from the wallet's own slot.
func (w *Wallet) Resign(game string, id uint64, slot int) (*core.Transaction, error) {
	return w.NewTx(core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: game, SessionID: id, LoserSlot: &slot})
}

// Cancel abandons a waiting session and refunds everyone seated.
func (w *Wallet) Cancel(game string, id uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxPlayerFinishSession, core.PlayerFinishPayload{Game: game, SessionID: id})
}

// ClaimTimeout declares the stalled player the loser.
func (w *Wallet) ClaimTimeout(game string, id uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimTimeout, core.ClaimTimeoutPayload{Game: game, SessionID: id})
}

func marshalMove(move any) (json.RawMessage, error) {
	switch m := move.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return m, nil
	}
	raw, err := json.Marshal(move)
	if err != nil {
		return nil, fmt.Errorf("marshal move: %w", err)
	}
	return raw, nil
}
