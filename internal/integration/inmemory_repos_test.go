package integration

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[string]domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[string]domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(_ context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; ok {
		return fmt.Errorf("duplicate key value violates unique constraint \"wallets_user_id_key\"")
	}
	r.wallets[w.UserID] = *w
	return nil
}

func (r *inMemoryWalletRepo) FindByUser(_ context.Context, userID string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *inMemoryWalletRepo) Save(_ context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; !ok {
		return fmt.Errorf("wallet not found")
	}
	r.wallets[w.UserID] = *w
	return nil
}

func (r *inMemoryWalletRepo) FindByUserForUpdate(ctx context.Context, _ pgx.Tx, userID string) (*domain.Wallet, error) {
	return r.FindByUser(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(_ context.Context, _ pgx.Tx, userID string, balance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance = balance
	r.wallets[userID] = w
	return nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]domain.Transfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{transfers: make(map[uuid.UUID]domain.Transfer)}
}

func (r *inMemoryTransferRepo) Create(_ context.Context, t *domain.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[t.ID] = *t
	return nil
}

func (r *inMemoryTransferRepo) update(id uuid.UUID, fn func(*domain.Transfer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return fmt.Errorf("transfer %s not found", id)
	}
	fn(&t)
	r.transfers[id] = t
	return nil
}

func (r *inMemoryTransferRepo) SetSignature(_ context.Context, id uuid.UUID, signature string) error {
	return r.update(id, func(t *domain.Transfer) { t.Signature = signature })
}

func (r *inMemoryTransferRepo) MarkConfirmed(_ context.Context, _ pgx.Tx, id uuid.UUID, confirmedAt time.Time) error {
	return r.update(id, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusConfirmed
		t.ConfirmedAt = &confirmedAt
	})
}

func (r *inMemoryTransferRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return r.update(id, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusFailed
		t.Error = reason
	})
}

func (r *inMemoryTransferRepo) ListPending(_ context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Transfer
	for _, t := range r.transfers {
		if t.Status == domain.TransferStatusPending && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryTransferRepo) byStatus(status domain.TransferStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.transfers {
		if t.Status == status {
			n++
		}
	}
	return n
}

// --- In-Memory Swap Repo ---

type inMemorySwapRepo struct {
	mu    sync.RWMutex
	swaps map[uuid.UUID]domain.Swap
}

func newInMemorySwapRepo() *inMemorySwapRepo {
	return &inMemorySwapRepo{swaps: make(map[uuid.UUID]domain.Swap)}
}

func (r *inMemorySwapRepo) Create(_ context.Context, s *domain.Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps[s.ID] = *s
	return nil
}

func (r *inMemorySwapRepo) Update(_ context.Context, s *domain.Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.swaps[s.ID]; !ok {
		return fmt.Errorf("swap %s not found", s.ID)
	}
	r.swaps[s.ID] = *s
	return nil
}

func (r *inMemorySwapRepo) all() []domain.Swap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Swap, 0, len(r.swaps))
	for _, s := range r.swaps {
		out = append(out, s)
	}
	return out
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *inMemoryAuditRepo) Create(_ context.Context, e *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// --- In-Memory Transactor ---

type inMemoryTx struct {
	pgx.Tx
}

func (inMemoryTx) Commit(context.Context) error   { return nil }
func (inMemoryTx) Rollback(context.Context) error { return nil }

type inMemoryTransactor struct{}

func (inMemoryTransactor) Begin(context.Context) (pgx.Tx, error) { return inMemoryTx{}, nil }

// --- Ledger Chain ---

// ledgerChain is a single-node chain: it checks signatures, applies system transfers
// to an in-memory ledger and confirms every landed transaction immediately.
type ledgerChain struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	statuses map[solana.Signature]*ports.SignatureStatus
	slot     uint64
	lagging  bool // statuses are withheld while set
}

func newLedgerChain() *ledgerChain {
	return &ledgerChain{
		balances: make(map[solana.PublicKey]uint64),
		statuses: make(map[solana.Signature]*ports.SignatureStatus),
	}
}

func (c *ledgerChain) fund(account solana.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] += lamports
}

func (c *ledgerChain) setLagging(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lagging = v
}

func (c *ledgerChain) balance(account solana.PublicKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[account]
}

func (c *ledgerChain) GetBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	return c.balance(account), nil
}

// LatestBlockhash hands out a new hash per call so identical transfers sign differently.
func (c *ledgerChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot++
	var h solana.Hash
	binary.LittleEndian.PutUint64(h[:8], c.slot)
	return h, nil
}

func (c *ledgerChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("signature verification failure: %w", err)
	}
	sig := tx.Signatures[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	status := &ports.SignatureStatus{Found: true, ConfirmationStatus: "confirmed"}
	pending := make(map[solana.PublicKey]uint64, len(c.balances))
	for k, v := range c.balances {
		pending[k] = v
	}
	for _, ix := range tx.Message.Instructions {
		program, err := tx.Message.Program(ix.ProgramIDIndex)
		if err != nil || !program.Equals(solana.SystemProgramID) || len(ix.Data) != 12 {
			continue
		}
		if binary.LittleEndian.Uint32(ix.Data[:4]) != 2 { // system Transfer
			continue
		}
		lamports := binary.LittleEndian.Uint64(ix.Data[4:])
		from := tx.Message.AccountKeys[ix.Accounts[0]]
		to := tx.Message.AccountKeys[ix.Accounts[1]]
		if pending[from] < lamports {
			status.Err = "InsufficientFundsForRent"
			break
		}
		pending[from] -= lamports
		pending[to] += lamports
	}
	if status.Err == "" {
		c.balances = pending
	}
	c.statuses[sig] = status
	return sig, nil
}

func (c *ledgerChain) GetSignatureStatus(_ context.Context, sig solana.Signature) (*ports.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.statuses[sig]; ok && !c.lagging {
		return s, nil
	}
	return &ports.SignatureStatus{}, nil
}

func (c *ledgerChain) TokenDecimals(context.Context, solana.PublicKey) (uint8, error) {
	return 6, nil
}

// --- Recording Notifier ---

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: make(map[string][]string)}
}

func (n *recordingNotifier) Notify(_ context.Context, userID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[userID] = append(n.messages[userID], text)
}

func (n *recordingNotifier) forUser(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[userID]...)
}
