package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/game"
	"github.com/tolelom/tolarena/indexer"
	"github.com/tolelom/tolarena/ledger"
	"github.com/tolelom/tolarena/vm/modules/economy"
	"github.com/tolelom/tolarena/vm/modules/session"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	seq     *ledger.Sequencer
	indexer *indexer.Indexer
}

// NewHandler creates an RPC Handler.
func NewHandler(seq *ledger.Sequencer, idx *indexer.Indexer) *Handler {
	return &Handler{seq: seq, indexer: idx}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getHeight":
		return h.view(req, func(s core.State) (any, error) { return s.GetHeight() })

	case "getStateRoot":
		return okResponse(req.ID, h.seq.StateRoot())

	case "getReceipt":
		return h.getReceipt(req)

	case "getBalance":
		return h.getBalance(req)

	case "getAccount":
		return h.getAccount(req)

	case "getGame":
		return h.getGame(req)

	case "getSession":
		return h.getSession(req)

	case "getSessionsByPlayer":
		return h.getSessionsByPlayer(req)

	case "getOpenSessions":
		return h.getOpenSessions(req)

	case "isSupportedToken":
		return h.isSupportedToken(req)

	case "tokenFee":
		return h.tokenFee(req)

	case "listTokens":
		return h.view(req, func(s core.State) (any, error) { return s.ListTokens() })

	case "sendTx":
		return h.sendTx(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// view runs fn under the sequencer's read lock.
func (h *Handler) view(req Request, fn func(core.State) (any, error)) Response {
	var result any
	err := h.seq.View(func(s core.State) error {
		var err error
		result, err = fn(s)
		return err
	})
	if err != nil {
		return errFrom(req.ID, CodeInternalError, err)
	}
	return okResponse(req.ID, result)
}

func decode(req Request, v any) *Response {
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetReceipt(params.TxID) })
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	if params.Token == "" {
		params.Token = core.NativeToken
	}
	return h.view(req, func(s core.State) (any, error) {
		bal, err := s.GetBalance(params.Token, params.Address)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": params.Address, "token": params.Token, "balance": bal}, nil
	})
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetAccount(params.Address) })
}

func (h *Handler) getGame(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetGame(params.ID) })
}

// SessionView is the getSession result.
type SessionView struct {
	Session *core.Session `json:"session"`
	Status  string        `json:"status"`
	Players []string      `json:"players"`
	Board   any           `json:"board,omitempty"`
}

func (h *Handler) getSession(req Request) Response {
	var params struct {
		Game string `json:"game"`
		ID   uint64 `json:"id"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.Game == "" || params.ID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "game and id are required")
	}
	return h.view(req, func(s core.State) (any, error) {
		sess, err := s.GetSession(params.Game, params.ID)
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		players, err := session.Players(s, params.Game, params.ID)
		if err != nil {
			return nil, err
		}
		out := &SessionView{Session: sess, Status: sess.Status().String(), Players: players}

		g, err := s.GetGame(params.Game)
		if err != nil {
			return nil, err
		}
		rules, ok := game.Lookup(g.Rules)
		if !ok {
			log.Printf("[rpc] game %s uses unregistered rules %q, omitting board", g.ID, g.Rules)
			return out, nil
		}
		board, err := s.GetBoard(params.Game, params.ID)
		if errors.Is(err, core.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load board: %w", err)
		}
		if out.Board, err = rules.View(board); err != nil {
			return nil, fmt.Errorf("view board: %w", err)
		}
		return out, nil
	})
}

func (h *Handler) getSessionsByPlayer(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	refs, err := h.indexer.GetSessionsByPlayer(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(refs))
}

func (h *Handler) getOpenSessions(req Request) Response {
	var params struct {
		Game string `json:"game"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	if params.Game == "" {
		return errResponse(req.ID, CodeInvalidParams, "game is required")
	}
	refs, err := h.indexer.GetOpenSessions(params.Game)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(refs))
}

func nonNil(refs []indexer.SessionRef) []indexer.SessionRef {
	if refs == nil {
		return []indexer.SessionRef{}
	}
	return refs
}

func (h *Handler) isSupportedToken(req Request) Response {
	var params struct {
		Token string `json:"token"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	return h.view(req, func(s core.State) (any, error) { return economy.IsSupportedToken(s, params.Token) })
}

func (h *Handler) tokenFee(req Request) Response {
	var params struct {
		Token string `json:"token"`
	}
	if bad := decode(req, &params); bad != nil {
		return *bad
	}
	return h.view(req, func(s core.State) (any, error) { return economy.TokenFee(s, params.Token) })
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if bad := decode(req, &tx); bad != nil {
		return *bad
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.seq.ChainID() {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.seq.ChainID()))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	receipt, err := h.seq.Submit(&tx)
	if err != nil {
		return errFrom(req.ID, CodeTxRejected, err)
	}
	return okResponse(req.ID, receipt)
}
