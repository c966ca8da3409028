package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Error is a named failure condition. Handlers wrap these with context; the
// name survives wrapping and is what clients see in RPC error data.
type Error struct {
	Name string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(name, msg string) *Error {
	return &Error{Name: name, Msg: msg}
}

// Input validation.
var (
	ErrInvalidPlayerCount  = newError("InvalidPlayerCount", "invalid player count")
	ErrWrongInitParams     = newError("WrongInitParams", "wrong init params")
	ErrInvalidGameMode     = newError("InvalidGameMode", "invalid game mode")
	ErrInvalidRandomNumber = newError("InvalidRandomNumber", "invalid random number")
	ErrInvalidSlot         = newError("InvalidSlot", "invalid slot")
	ErrInvalidFee          = newError("InvalidFee", "fee exceeds maximum")
	ErrInvalidMove         = newError("InvalidMove", "invalid move")
	ErrUnknownRules        = newError("UnknownRules", "unknown game rules")
)

// Lifecycle preconditions.
var (
	ErrSessionNotWaiting = newError("SessionNotWaiting", "session not waiting")
	ErrSessionNotPlaying = newError("SessionNotPlaying", "session not playing")
	ErrSessionNotFound   = newError("SessionNotFound", "session not found")
	ErrNotInitialized    = newError("NotInitialized", "game not initialized")
	ErrTurnNotExpired    = newError("TurnNotExpired", "turn has not timed out")
	ErrTimeoutDisabled   = newError("TimeoutDisabled", "turn timeout disabled for game")
)

// Authorization.
var (
	ErrNotPlayerTurn = newError("NotPlayerTurn", "not player turn")
	ErrNotOwner      = newError("NotOwner", "caller is not the owner")
)

// Resources.
var (
	ErrPlayerHasSession    = newError("PlayerHasSession", "player already has an active session")
	ErrUnsupportedToken    = newError("UnsupportedToken", "unsupported token")
	ErrInsufficientBalance = newError("InsufficientBalance", "insufficient balance")
)

// ErrorName returns the name of the first *Error in err's chain, or "" if
// err carries none.
func ErrorName(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}
