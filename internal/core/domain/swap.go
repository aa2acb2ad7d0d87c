package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SwapState is a step of the swap state machine.
type SwapState string

const (
	SwapStateRequested SwapState = "REQUESTED"
	SwapStateQuoted    SwapState = "QUOTED"
	SwapStateBuilt     SwapState = "BUILT"
	SwapStateSigned    SwapState = "SIGNED"
	SwapStateSubmitted SwapState = "SUBMITTED"
	SwapStateConfirmed SwapState = "CONFIRMED"
	SwapStateFailed    SwapState = "FAILED"
)

// swapOrder is the forward path through the state machine.
var swapOrder = map[SwapState]int{
	SwapStateRequested: 0,
	SwapStateQuoted:    1,
	SwapStateBuilt:     2,
	SwapStateSigned:    3,
	SwapStateSubmitted: 4,
	SwapStateConfirmed: 5,
}

// Swap tracks one swap request through quote, build, sign, submit and confirm.
type Swap struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	InputMint   string    `json:"input_mint"`
	OutputMint  string    `json:"output_mint"`
	Amount      string    `json:"amount"`    // display units of the input asset
	AmountIn    uint64    `json:"amount_in"` // smallest units of the input asset
	SlippageBps uint16    `json:"slippage_bps"`
	QuotedOut   string    `json:"quoted_out,omitempty"`
	State       SwapState `json:"state"`
	Signature   string    `json:"signature,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further transition is possible.
func (s *Swap) IsTerminal() bool {
	return s.State == SwapStateConfirmed || s.State == SwapStateFailed
}

// Advance moves the swap one step forward. Skipping or repeating a step is an error.
func (s *Swap) Advance(next SwapState, now time.Time) error {
	if s.IsTerminal() {
		return fmt.Errorf("swap %s is already %s", s.ID, s.State)
	}
	cur, ok := swapOrder[s.State]
	if !ok {
		return fmt.Errorf("swap %s has unknown state %q", s.ID, s.State)
	}
	if nxt, ok := swapOrder[next]; !ok || nxt != cur+1 {
		return fmt.Errorf("swap %s cannot move from %s to %s", s.ID, s.State, next)
	}
	s.State = next
	s.UpdatedAt = now
	return nil
}

// Fail moves a non-terminal swap to FAILED and records the error code.
func (s *Swap) Fail(code string, now time.Time) {
	if s.IsTerminal() {
		return
	}
	s.State = SwapStateFailed
	s.ErrorCode = code
	s.UpdatedAt = now
}
