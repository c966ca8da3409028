package core

// NativeToken pays transaction fees and is the default stake token.
const NativeToken = "TOL"

// Module accounts. Escrow holds live stakes; Treasury collects fees and
// payout remainders. Neither has a key, so only handlers can move their funds.
const (
	EscrowAddress   = "escrow"
	TreasuryAddress = "treasury"
)

// FeeMax is the denominator of SupportedToken.FeeBasisPoints.
const FeeMax = 10_000

// Account holds a participant's replay-protection nonce.
// Address is the hex-encoded ed25519 public key. Balances live separately,
// keyed by token.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Nonce   uint64 `json:"nonce"`
}

// SupportedToken is an entry of the append-only stake-token registry.
type SupportedToken struct {
	Token          string `json:"token"`
	FeeBasisPoints uint16 `json:"fee_basis_points"`
	Enabled        bool   `json:"enabled"`
	Index          int    `json:"index"` // append order
}

// GameInstance configures one deployment of a rules plugin. Sessions,
// slots and player locks are scoped to a game instance.
type GameInstance struct {
	ID              string `json:"id"`
	Rules           string `json:"rules"`
	MaxRandomNumber uint64 `json:"max_random_number"`
	Oracle          string `json:"oracle,omitempty"`       // 0x-prefixed signer address; empty → unverified
	TurnTimeout     int64  `json:"turn_timeout,omitempty"` // seconds; 0 disables claim_timeout
	Initialized     bool   `json:"initialized"`
	SessionCount    uint64 `json:"session_count"`
}

// GameStatus is derived from a Session and never stored.
type GameStatus uint8

const (
	StatusWaiting GameStatus = iota
	StatusPlaying
	StatusFinished
)

func (s GameStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Session represents one match of a game instance.
// OptionToken and OptionAmount are either both set (paid) or both nil (free).
type Session struct {
	ID              uint64  `json:"id"`
	Game            string  `json:"game"`
	Creator         string  `json:"creator"`
	PlayerCount     uint8   `json:"player_count"` // 0 once finished
	RequiredPlayers uint8   `json:"required_players"`
	NextPlayerID    uint8   `json:"next_player_id"`
	Nonce           uint64  `json:"nonce"` // moves played
	OptionToken     *string `json:"option_token,omitempty"`
	OptionAmount    *uint64 `json:"option_amount,omitempty"`
	CreatedAt       int64   `json:"created_at"`
	LastMoveAt      int64   `json:"last_move_at"`
	FinishedAt      int64   `json:"finished_at,omitempty"`
	Winner          *int    `json:"winner,omitempty"`
	Loser           *int    `json:"loser,omitempty"`
}

// Status derives the lifecycle phase from the player counts.
func (s *Session) Status() GameStatus {
	switch {
	case s.PlayerCount == 0:
		return StatusFinished
	case s.PlayerCount == s.RequiredPlayers:
		return StatusPlaying
	default:
		return StatusWaiting
	}
}

// Paid reports whether the session escrows stakes.
func (s *Session) Paid() bool {
	return s.OptionToken != nil && s.OptionAmount != nil
}

// RandomNumber is an oracle-supplied value plus its v/r/s signature.
type RandomNumber struct {
	Value uint64 `json:"value"`
	V     uint8  `json:"v,omitempty"`
	R     string `json:"r,omitempty"` // hex
	S     string `json:"s,omitempty"` // hex
}

// Receipt records a committed transaction.
type Receipt struct {
	Height int64          `json:"height"`
	TxID   string         `json:"tx_id"`
	Type   TxType         `json:"type"`
	From   string         `json:"from"`
	Time   int64          `json:"time"` // unix seconds from the sequencer clock
	Result map[string]any `json:"result,omitempty"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts and balances
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error
	GetBalance(token, address string) (uint64, error)
	SetBalance(token, address string, amount uint64) error

	// Ownership of administrative entry points
	GetOwner() (string, error)
	SetOwner(owner string) error

	// Supported-token registry
	GetToken(token string) (*SupportedToken, error)
	SetToken(t *SupportedToken) error
	ListTokens() ([]*SupportedToken, error)

	// Game instances
	GetGame(id string) (*GameInstance, error)
	SetGame(g *GameInstance) error

	// Sessions, slots, locks, boards
	GetSession(game string, id uint64) (*Session, error)
	SetSession(s *Session) error
	GetSlot(game string, id uint64, slot int) (string, error)
	SetSlot(game string, id uint64, slot int, player string) error
	GetLock(game, player string) (uint64, error) // 0 when unlocked
	SetLock(game, player string, id uint64) error // id 0 unlocks
	GetBoard(game string, id uint64) ([]byte, error)
	SetBoard(game string, id uint64, board []byte) error

	// Receipts
	GetReceipt(txID string) (*Receipt, error)
	PutReceipt(r *Receipt) error
	GetHeight() (int64, error)

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root over committed state
	// and the current write buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
