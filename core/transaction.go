package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolarena/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer              TxType = "transfer"
	TxUpdateSupportedTokens TxType = "update_supported_tokens"
	TxWithdraw              TxType = "withdraw"
	TxGameInit              TxType = "game_init"
	TxCreateSession         TxType = "create_session"
	TxJoinSession           TxType = "join_session"
	TxPlay                  TxType = "play"
	TxOwnerFinishSession    TxType = "owner_finish_session"
	TxPlayerFinishSession   TxType = "player_finish_session"
	TxClaimTimeout          TxType = "claim_timeout"
)

// Transaction is the atomic unit of work on the ledger.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves tokens between accounts. Empty Token means NativeToken.
type TransferPayload struct {
	Token  string `json:"token,omitempty"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// UpdateSupportedTokensPayload appends a stake token or updates an existing
// entry's fee and enabled flag.
type UpdateSupportedTokensPayload struct {
	Token          string `json:"token"`
	FeeBasisPoints uint16 `json:"fee_basis_points"`
	Enabled        bool   `json:"enabled"`
}

// WithdrawPayload sweeps the treasury. Nil Amount withdraws everything.
type WithdrawPayload struct {
	Token       string  `json:"token"`
	Beneficiary string  `json:"beneficiary"`
	Amount      *uint64 `json:"amount,omitempty"`
}

// GameInitPayload registers a game instance backed by a rules plugin.
type GameInitPayload struct {
	ID              string `json:"id"`
	Rules           string `json:"rules"`
	MaxRandomNumber uint64 `json:"max_random_number"`
	Oracle          string `json:"oracle,omitempty"`
	TurnTimeout     int64  `json:"turn_timeout,omitempty"`
}

// CreateSessionPayload opens a session. Exactly one mode must be given:
// paid (Token and Amount) or free (Players, the co-players in slot order).
type CreateSessionPayload struct {
	Game            string   `json:"game"`
	Token           *string  `json:"token,omitempty"`
	Amount          *uint64  `json:"amount,omitempty"`
	Players         []string `json:"players,omitempty"`
	RequiredPlayers uint8    `json:"required_players"`
}

// JoinSessionPayload takes the next free slot of a waiting session.
type JoinSessionPayload struct {
	Game      string `json:"game"`
	SessionID uint64 `json:"session_id"`
}

// PlayPayload submits one turn. With AsOwner the owner relays the turn on
// behalf of Player.
type PlayPayload struct {
	Game          string          `json:"game"`
	SessionID     uint64          `json:"session_id"`
	Move          json.RawMessage `json:"move,omitempty"`
	RandomNumbers []RandomNumber  `json:"random_numbers"`
	AsOwner       bool            `json:"as_owner,omitempty"`
	Player        string          `json:"player,omitempty"`
}

// OwnerFinishPayload force-finishes a session. At most one slot may be set.
type OwnerFinishPayload struct {
	Game       string `json:"game"`
	SessionID  uint64 `json:"session_id"`
	WinnerSlot *int   `json:"winner_slot,omitempty"`
	LoserSlot  *int   `json:"loser_slot,omitempty"`
}

// PlayerFinishPayload resigns (LoserSlot = own slot) or cancels a waiting
// session (LoserSlot nil).
type PlayerFinishPayload struct {
	Game      string `json:"game"`
	SessionID uint64 `json:"session_id"`
	LoserSlot *int   `json:"loser_slot,omitempty"`
}

// ClaimTimeoutPayload declares the stalled player of a session the loser.
type ClaimTimeoutPayload struct {
	Game      string `json:"game"`
	SessionID uint64 `json:"session_id"`
}
