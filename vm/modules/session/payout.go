package session

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolarena/core"
)

// Policy names the branch of the payout engine that produced a Distribution.
type Policy string

const (
	PolicyWinner Policy = "winner"
	PolicyLoser  Policy = "loser"
	PolicyRefund Policy = "refund"
)

// Leg is one transfer out of escrow.
type Leg struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Distribution is the full settlement of a session pool. The legs always
// sum to Pool.
type Distribution struct {
	Policy Policy `json:"policy"`
	Pool   uint64 `json:"pool"`
	Fee    uint64 `json:"fee"`
	Legs   []Leg  `json:"legs"`
}

// Distribute splits amount × len(players) between players and the treasury.
//
//   - winner set: feeBP/FeeMax of the pool goes to the treasury, the rest to
//     the winner.
//   - loser set: every other slot gets ⌊pool/(n−1)⌋; the rounding remainder
//     goes to the treasury. Only 2 or 4 players are valid here.
//   - neither: every slot is refunded amount.
func Distribute(players []string, amount uint64, feeBP uint16, winner, loser *int) (*Distribution, error) {
	n := len(players)
	if n == 0 {
		return nil, fmt.Errorf("no players: %w", core.ErrInvalidPlayerCount)
	}
	if feeBP > core.FeeMax {
		return nil, fmt.Errorf("fee %d: %w", feeBP, core.ErrInvalidFee)
	}
	for _, s := range []*int{winner, loser} {
		if s != nil && (*s < 0 || *s >= n) {
			return nil, fmt.Errorf("slot %d of %d: %w", *s, n, core.ErrInvalidSlot)
		}
	}

	pool, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(uint64(n)))
	if overflow || !pool.IsUint64() {
		return nil, fmt.Errorf("pool overflow: %d × %d", amount, n)
	}
	d := &Distribution{Pool: pool.Uint64()}

	switch {
	case winner != nil:
		fee, overflow := new(uint256.Int).MulDivOverflow(pool, uint256.NewInt(uint64(feeBP)), uint256.NewInt(core.FeeMax))
		if overflow {
			return nil, fmt.Errorf("fee overflow")
		}
		d.Policy = PolicyWinner
		d.Fee = fee.Uint64()
		d.add(players[*winner], d.Pool-d.Fee)
		d.add(core.TreasuryAddress, d.Fee)

	case loser != nil:
		if n != 2 && n != 4 {
			return nil, fmt.Errorf("loser split over %d players: %w", n, core.ErrInvalidPlayerCount)
		}
		share := new(uint256.Int).Div(pool, uint256.NewInt(uint64(n-1))).Uint64()
		d.Policy = PolicyLoser
		for i, p := range players {
			if i != *loser {
				d.add(p, share)
			}
		}
		d.add(core.TreasuryAddress, d.Pool-share*uint64(n-1))

	default:
		d.Policy = PolicyRefund
		for _, p := range players {
			d.add(p, amount)
		}
	}
	return d, nil
}

func (d *Distribution) add(to string, amount uint64) {
	if amount == 0 {
		return
	}
	d.Legs = append(d.Legs, Leg{To: to, Amount: amount})
}

// Total sums the legs.
func (d *Distribution) Total() uint64 {
	var sum uint64
	for _, l := range d.Legs {
		sum += l.Amount
	}
	return sum
}
