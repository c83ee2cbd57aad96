package invoice

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryRepo stages every transaction on a copy and swaps it in on commit,
// so a failed callback leaves nothing behind.
type memoryRepo struct {
	mu        sync.Mutex
	invoices  map[int64]Invoice
	nextID    int64
	nextPayID int64
	numberSeq int64

	failAppend error
	commits    int
}

type memoryTx struct {
	invoices  map[int64]Invoice
	nextID    *int64
	nextPayID *int64
	numberSeq *int64
	repo      *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice)}
}

func (r *memoryRepo) seed(inv Invoice) Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == 0 {
		r.nextID++
		inv.ID = r.nextID
	} else if inv.ID > r.nextID {
		r.nextID = inv.ID
	}
	r.invoices[inv.ID] = inv.clone()
	return inv
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		staged[id] = inv.clone()
	}
	nextID, nextPayID, seq := r.nextID, r.nextPayID, r.numberSeq
	tx := &memoryTx{invoices: staged, nextID: &nextID, nextPayID: &nextPayID, numberSeq: &seq, repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.invoices = staged
	r.nextID, r.nextPayID, r.numberSeq = nextID, nextPayID, seq
	r.commits++
	return nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv.clone(), nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.ClientID != 0 && inv.ClientID != req.ClientID {
			continue
		}
		if req.DueBefore != nil && (inv.DueDate.IsZero() || !StartOfDay(inv.DueDate).Before(StartOfDay(*req.DueBefore))) {
			continue
		}
		out = append(out, inv.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) stored(id int64) Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoices[id].clone()
}

func (t *memoryTx) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv.clone(), nil
}

func (t *memoryTx) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	*t.nextID++
	inv.ID = *t.nextID
	inv.CreatedAt = fixedNow
	inv.UpdatedAt = fixedNow
	inv.Advisory = &Advisory{BalanceDue: inv.Total()}
	t.invoices[inv.ID] = inv.clone()
	return inv.ID, nil
}

func (t *memoryTx) ReplaceLineItems(ctx context.Context, invoiceID int64, items []LineItem, taxRate float64) error {
	inv, ok := t.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.LineItems = append([]LineItem(nil), items...)
	inv.TaxRate = taxRate
	t.invoices[invoiceID] = inv
	return nil
}

func (t *memoryTx) AppendPayment(ctx context.Context, invoiceID int64, p Payment) (int64, error) {
	if t.repo.failAppend != nil {
		return 0, t.repo.failAppend
	}
	inv, ok := t.invoices[invoiceID]
	if !ok {
		return 0, ErrNotFound
	}
	*t.nextPayID++
	p.ID = *t.nextPayID
	inv.payments = append(append([]Payment(nil), inv.payments...), p)
	t.invoices[invoiceID] = inv
	return p.ID, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status, balances Advisory) error {
	inv, ok := t.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.Advisory = &balances
	t.invoices[id] = inv
	return nil
}

func (t *memoryTx) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	*t.numberSeq++
	return fmt.Sprintf("INV-%06d", *t.numberSeq), nil
}
