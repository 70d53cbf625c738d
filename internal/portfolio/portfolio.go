// Package portfolio models the holdings the risk analytics and the
// constraint gate operate on. Positions are owned by the Portfolio and
// mutated only through its add/reduce/close operations.
package portfolio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Position errors.
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrSideMismatch     = errors.New("position side mismatch")
)

// Side is the direction of a holding.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is a single portfolio holding.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	Side         Side    `json:"side"`
}

// MarketValue returns the position's current notional value.
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL returns the open profit or loss of the position.
func (p Position) UnrealizedPnL() float64 {
	if p.Side == SideShort {
		return (p.AvgPrice - p.CurrentPrice) * p.Quantity
	}
	return (p.CurrentPrice - p.AvgPrice) * p.Quantity
}

// Snapshot is a read-only view of the portfolio handed to the analytics
// and the gate. It must never be mutated mid-computation.
type Snapshot struct {
	Positions   []Position `json:"positions"`
	CashBalance float64    `json:"cash_balance"`
	TotalValue  float64    `json:"total_value"`
}

// Portfolio owns the position set and the cash balance.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position
	cash      float64
}

// New creates a portfolio with the given starting cash.
func New(cash float64) *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
		cash:      cash,
	}
}

// Add opens or extends a position. Extending averages the entry price
// by quantity.
func (pf *Portfolio) Add(symbol string, quantity, price float64, side Side) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if price <= 0 {
		return ErrInvalidPrice
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	cost := quantity * price
	if existing, ok := pf.positions[symbol]; ok {
		if existing.Side != side {
			return fmt.Errorf("%w: %s is %s", ErrSideMismatch, symbol, existing.Side)
		}
		total := existing.Quantity + quantity
		existing.AvgPrice = (existing.AvgPrice*existing.Quantity + price*quantity) / total
		existing.Quantity = total
		existing.CurrentPrice = price
	} else {
		pf.positions[symbol] = &Position{
			Symbol:       symbol,
			Quantity:     quantity,
			AvgPrice:     price,
			CurrentPrice: price,
			Side:         side,
		}
	}
	pf.cash -= cost

	log.Debug().
		Str("symbol", symbol).
		Float64("quantity", quantity).
		Float64("price", price).
		Str("side", string(side)).
		Msg("Position added")

	return nil
}

// Reduce shrinks a position, destroying it when the quantity reaches
// zero.
func (pf *Portfolio) Reduce(symbol string, quantity, price float64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if price <= 0 {
		return ErrInvalidPrice
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	if quantity > pos.Quantity {
		return fmt.Errorf("%w: have %.8f, reducing %.8f", ErrInvalidQuantity, pos.Quantity, quantity)
	}

	pos.Quantity -= quantity
	pos.CurrentPrice = price
	pf.cash += quantity * price

	if pos.Quantity == 0 {
		delete(pf.positions, symbol)
		log.Debug().Str("symbol", symbol).Msg("Position closed via full reduction")
	}

	return nil
}

// Close liquidates a position entirely at the given price.
func (pf *Portfolio) Close(symbol string, price float64) error {
	pf.mu.RLock()
	pos, ok := pf.positions[symbol]
	if !ok {
		pf.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	quantity := pos.Quantity
	pf.mu.RUnlock()

	return pf.Reduce(symbol, quantity, price)
}

// MarkPrice updates the current price of a position.
func (pf *Portfolio) MarkPrice(symbol string, price float64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	pos.CurrentPrice = price
	return nil
}

// Snapshot returns a consistent copy of the portfolio state.
func (pf *Portfolio) Snapshot() Snapshot {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	positions := make([]Position, 0, len(pf.positions))
	total := pf.cash
	for _, pos := range pf.positions {
		positions = append(positions, *pos)
		total += pos.MarketValue()
	}

	return Snapshot{
		Positions:   positions,
		CashBalance: pf.cash,
		TotalValue:  total,
	}
}
