package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

var errLedgerDown = errors.New("ledger unavailable")

// Ledger is an in-process double-entry ledger. A repeated reference returns
// the original receipt without moving funds twice.
type Ledger struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	receipts  map[string]ports.TransferReceipt
	calls     int
	failNext  int
	failMatch string
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]decimal.Decimal),
		receipts: make(map[string]ports.TransferReceipt),
	}
}

// FailNext makes the next n transfer calls fail.
func (l *Ledger) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

// FailReferences makes every call whose reference contains substr fail.
// An empty substr clears the rule.
func (l *Ledger) FailReferences(substr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failMatch = substr
}

func (l *Ledger) Transfer(ctx context.Context, req ports.TransferRequest) (ports.TransferReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.TransferReceipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++

	reference := strings.TrimSpace(req.Reference)
	if reference == "" || !req.Amount.IsPositive() || req.From == "" || req.To == "" {
		return ports.TransferReceipt{}, domainerrors.ErrInvalidAmount
	}
	if l.failNext > 0 {
		l.failNext--
		return ports.TransferReceipt{}, errLedgerDown
	}
	if l.failMatch != "" && strings.Contains(reference, l.failMatch) {
		return ports.TransferReceipt{}, errLedgerDown
	}
	if receipt, ok := l.receipts[reference]; ok {
		return receipt, nil
	}

	l.balances[req.From] = l.balances[req.From].Sub(req.Amount)
	l.balances[req.To] = l.balances[req.To].Add(req.Amount)
	sum := sha256.Sum256([]byte(reference + "|" + req.From + "|" + req.To + "|" + req.Amount.String()))
	receipt := ports.TransferReceipt{
		TransferID: uuid.NewString(),
		Hash:       "0x" + hex.EncodeToString(sum[:]),
		PostedAt:   time.Now().UTC(),
	}
	l.receipts[reference] = receipt
	return receipt, nil
}

func (l *Ledger) Balance(account string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Calls counts every Transfer invocation, including failed ones.
func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
