package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoicely/invoicely/internal/platform/db"
)

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	Status   Status
	ClientID int64
	// DueBefore limits results to invoices due on an earlier calendar day
	// (UTC) than the value.
	DueBefore *time.Time
	Limit     int
	Offset    int
}

// Repository defines invoice data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	// LockInvoice loads an invoice with its ledger and holds a row lock until
	// the transaction ends.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	ReplaceLineItems(ctx context.Context, invoiceID int64, items []LineItem, taxRate float64) error
	AppendPayment(ctx context.Context, invoiceID int64, p Payment) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status, balances Advisory) error
	GenerateInvoiceNumber(ctx context.Context) (string, error)
}

var _ Repository = (*PGRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository provides PostgreSQL backed persistence for invoices.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

// GetInvoice loads an invoice with line items and ledger.
func (r *PGRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, id, false)
}

// ListInvoices returns invoices ordered by id, newest first.
func (r *PGRepository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	var (
		where []string
		args  []any
	)
	if req.Status != "" {
		args = append(args, string(req.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.ClientID > 0 {
		args = append(args, req.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if req.DueBefore != nil {
		args = append(args, toDate(StartOfDay(*req.DueBefore)))
		where = append(where, fmt.Sprintf("due_date < $%d", len(args)))
	}

	query := selectInvoiceSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		invoices []Invoice
		ids      []int64
	)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return invoices, nil
	}

	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	payments, err := loadPayments(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i, inv := range invoices {
		inv.LineItems = items[inv.ID]
		invoices[i] = Restore(inv, payments[inv.ID])
	}
	return invoices, nil
}

type pgTxRepository struct {
	q querier
}

func (t *pgTxRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, t.q, id, true)
}

func (t *pgTxRepository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO invoices (number, client_id, status, tax_rate, due_date, amount_paid, balance_due, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NOW(), NOW())
		RETURNING id`,
		inv.Number, inv.ClientID, string(inv.Status), inv.TaxRate, toDate(inv.DueDate), Round2(inv.Total()),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertItems(ctx, t.q, id, inv.LineItems); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTxRepository) ReplaceLineItems(ctx context.Context, invoiceID int64, items []LineItem, taxRate float64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	if _, err := t.q.Exec(ctx, `UPDATE invoices SET tax_rate = $2, updated_at = NOW() WHERE id = $1`, invoiceID, taxRate); err != nil {
		return err
	}
	return insertItems(ctx, t.q, invoiceID, items)
}

func (t *pgTxRepository) AppendPayment(ctx context.Context, invoiceID int64, p Payment) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, payment_method, reference_number, notes, payment_date, gateway_reference, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		invoiceID, p.Amount, string(p.Method), p.ReferenceNumber, p.Notes, p.PaymentDate, p.GatewayReference, p.RecordedAt,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) UpdateStatus(ctx context.Context, id int64, status Status, balances Advisory) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE invoices SET status = $2, amount_paid = $3, balance_due = $4, updated_at = NOW()
		WHERE id = $1`,
		id, string(status), Round2(balances.AmountPaid), Round2(balances.BalanceDue))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", seq), nil
}

const selectInvoiceSQL = `
	SELECT id, number, client_id, status, tax_rate, due_date, amount_paid, balance_due, created_at, updated_at
	FROM invoices`

func loadInvoice(ctx context.Context, q querier, id int64, lock bool) (Invoice, error) {
	query := selectInvoiceSQL + " WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	items, err := loadItems(ctx, q, []int64{id})
	if err != nil {
		return Invoice{}, err
	}
	payments, err := loadPayments(ctx, q, []int64{id})
	if err != nil {
		return Invoice{}, err
	}
	inv.LineItems = items[id]
	return Restore(inv, payments[id]), nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv     Invoice
		status  string
		dueDate pgtype.Date
		adv     Advisory
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &status, &inv.TaxRate, &dueDate,
		&adv.AmountPaid, &adv.BalanceDue, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = Status(status)
	if dueDate.Valid {
		inv.DueDate = dueDate.Time
	}
	inv.Advisory = &adv
	return inv, nil
}

func loadItems(ctx context.Context, q querier, ids []int64) (map[int64][]LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT invoice_id, description, quantity, unit_price
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]LineItem, len(ids))
	for rows.Next() {
		var (
			invoiceID int64
			item      LineItem
		)
		if err := rows.Scan(&invoiceID, &item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], item)
	}
	return out, rows.Err()
}

func loadPayments(ctx context.Context, q querier, ids []int64) (map[int64][]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT invoice_id, id, amount, payment_method, reference_number, notes, payment_date, gateway_reference, recorded_at
		FROM invoice_payments
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]Payment, len(ids))
	for rows.Next() {
		var (
			invoiceID int64
			p         Payment
			method    string
		)
		if err := rows.Scan(&invoiceID, &p.ID, &p.Amount, &method, &p.ReferenceNumber, &p.Notes,
			&p.PaymentDate, &p.GatewayReference, &p.RecordedAt); err != nil {
			return nil, err
		}
		p.Method = PaymentMethod(method)
		out[invoiceID] = append(out[invoiceID], p)
	}
	return out, rows.Err()
}

func insertItems(ctx context.Context, q querier, invoiceID int64, items []LineItem) error {
	for i, item := range items {
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			invoiceID, i, item.Description, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func toDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}
