// Package sqlite provides SQLite-backed persistence for the orders service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/storage/sqlitemigrate"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
	"github.com/commerceloop/orderflow/internal/services/orders/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store holds the orders write model, the events outbox, and the read model.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an orders SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateOrder atomically persists one order row and its creation event.
// A concurrent insert for the same (tenant, request) pair loses with
// storage.ErrConflict and leaves no event behind.
func (s *Store) CreateOrder(ctx context.Context, order storage.OrderRecord, evt storage.OutboxAppend) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeOrderRecord(order)
	if err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(normalized.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	var attachmentJSON sql.NullString
	if normalized.Attachment != nil {
		raw, err := json.Marshal(normalized.Attachment)
		if err != nil {
			return fmt.Errorf("marshal order attachment: %w", err)
		}
		attachmentJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order create: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback order create: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO orders (
		order_id, tenant_id, request_id, buyer_email, buyer_name,
		items_json, attachment_json, status, total, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		normalized.OrderID,
		normalized.TenantID,
		normalized.RequestID,
		normalized.BuyerEmail,
		normalized.BuyerName,
		string(itemsJSON),
		attachmentJSON,
		normalized.Status,
		normalized.Total,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert order: %w", err))
	}

	if err := appendOutboxExec(ctx, tx, evt, normalized.CreatedAt); err != nil {
		return rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order create: %w", err)
	}
	return nil
}

// GetOrder loads one order by its identifier.
func (s *Store) GetOrder(ctx context.Context, orderID string) (storage.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.OrderRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OrderRecord{}, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return storage.OrderRecord{}, fmt.Errorf("order id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, orderSelectColumns+` WHERE order_id = ?`, orderID)
	record, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OrderRecord{}, storage.ErrNotFound
		}
		return storage.OrderRecord{}, fmt.Errorf("get order: %w", err)
	}
	return record, nil
}

// GetOrderByTenantAndRequest resolves the idempotency ledger entry for one
// (tenant, request) pair.
func (s *Store) GetOrderByTenantAndRequest(ctx context.Context, tenantID, requestID string) (storage.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.OrderRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OrderRecord{}, fmt.Errorf("storage is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	requestID = strings.TrimSpace(requestID)
	if tenantID == "" {
		return storage.OrderRecord{}, fmt.Errorf("tenant id is required")
	}
	if requestID == "" {
		return storage.OrderRecord{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, orderSelectColumns+` WHERE tenant_id = ? AND request_id = ?`, tenantID, requestID)
	record, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OrderRecord{}, storage.ErrNotFound
		}
		return storage.OrderRecord{}, fmt.Errorf("get order by tenant and request: %w", err)
	}
	return record, nil
}

// MarkOrderPaid transitions one PENDING order to PAID and appends the
// status-change event in the same transaction. It reports false without
// writing anything when the order is not in PENDING, which makes repeated
// settlement fires idempotent.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string, evt storage.OutboxAppend, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, fmt.Errorf("order id is required")
	}
	if at.IsZero() {
		return false, fmt.Errorf("timestamp is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin order settlement: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback order settlement: %v", cause, rollbackErr)
		}
		return cause
	}

	result, err := tx.ExecContext(ctx, `
	UPDATE orders
	SET status = ?, updated_at = ?
	WHERE order_id = ? AND status = ?
	`, statusPaid, toMillis(at), orderID, statusPending)
	if err != nil {
		return false, rollbackWith(fmt.Errorf("mark order paid: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, rollbackWith(fmt.Errorf("mark order paid rows affected: %w", err))
	}
	if affected == 0 {
		if err := tx.Rollback(); err != nil {
			return false, fmt.Errorf("rollback no-op settlement: %w", err)
		}
		return false, nil
	}

	if err := appendOutboxExec(ctx, tx, evt, at); err != nil {
		return false, rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit order settlement: %w", err)
	}
	return true, nil
}

// ListUnpublishedEvents lists stored events awaiting bus publication in
// append order.
func (s *Store) ListUnpublishedEvents(ctx context.Context, limit int) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
	SELECT seq, kind, payload_json, created_at
	FROM events_outbox
	WHERE published = 0
	ORDER BY seq ASC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	results := make([]storage.OutboxEvent, 0, limit)
	for rows.Next() {
		var record storage.OutboxEvent
		var createdAt int64
		if err := rows.Scan(&record.Seq, &record.Kind, &record.PayloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return results, nil
}

// MarkEventPublished records that one outbox event reached the bus.
func (s *Store) MarkEventPublished(ctx context.Context, seq int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
	UPDATE events_outbox SET published = 1 WHERE seq = ?
	`, seq)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event published rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutOrderView upserts one read-model row. On conflict the status and
// update timestamp are left alone so a redelivered creation event cannot
// move an already settled row back to PENDING.
func (s *Store) PutOrderView(ctx context.Context, view storage.OrderViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeOrderViewRecord(view)
	if err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO order_reads (
		order_id, tenant_id, buyer_email, status, total,
		attachment_filename, attachment_storage_key, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET
		tenant_id = excluded.tenant_id,
		buyer_email = excluded.buyer_email,
		total = excluded.total,
		attachment_filename = excluded.attachment_filename,
		attachment_storage_key = excluded.attachment_storage_key,
		created_at = excluded.created_at
	`,
		normalized.OrderID,
		normalized.TenantID,
		normalized.BuyerEmail,
		normalized.Status,
		normalized.Total,
		normalized.AttachmentFilename,
		normalized.AttachmentStorageKey,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put order view: %w", err)
	}
	return nil
}

// SetOrderViewStatus sets one read-model row's status in place.
func (s *Store) SetOrderViewStatus(ctx context.Context, orderID, status string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	status = strings.TrimSpace(status)
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
	UPDATE order_reads SET status = ?, updated_at = ? WHERE order_id = ?
	`, status, toMillis(at), orderID)
	if err != nil {
		return fmt.Errorf("set order view status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set order view status rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetOrderView loads one read-model row.
func (s *Store) GetOrderView(ctx context.Context, orderID string) (storage.OrderViewRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.OrderViewRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OrderViewRecord{}, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return storage.OrderViewRecord{}, fmt.Errorf("order id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
	SELECT order_id, tenant_id, buyer_email, status, total,
	       attachment_filename, attachment_storage_key, created_at, updated_at
	FROM order_reads
	WHERE order_id = ?
	`, orderID)
	record, err := scanOrderView(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OrderViewRecord{}, storage.ErrNotFound
		}
		return storage.OrderViewRecord{}, fmt.Errorf("get order view: %w", err)
	}
	return record, nil
}

// ListOrderViews returns one page of read-model rows matching the filter,
// sorted by created_at descending with order_id descending as tiebreak,
// plus the total match count independent of the window.
func (s *Store) ListOrderViews(ctx context.Context, filter storage.ViewFilter) (storage.ViewPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ViewPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ViewPage{}, fmt.Errorf("storage is not configured")
	}
	tenantID := strings.TrimSpace(filter.TenantID)
	if tenantID == "" {
		return storage.ViewPage{}, fmt.Errorf("tenant id is required")
	}
	if filter.Limit <= 0 {
		return storage.ViewPage{}, fmt.Errorf("limit must be greater than zero")
	}
	if filter.Offset < 0 {
		return storage.ViewPage{}, fmt.Errorf("offset must be non-negative")
	}

	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if status := strings.TrimSpace(filter.Status); status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if buyerEmail := strings.TrimSpace(filter.BuyerEmail); buyerEmail != "" {
		where = append(where, "buyer_email = ?")
		args = append(args, buyerEmail)
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, toMillis(filter.To))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM order_reads WHERE `+whereSQL, args...,
	).Scan(&total); err != nil {
		return storage.ViewPage{}, fmt.Errorf("count order views: %w", err)
	}

	listArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	rows, err := s.sqlDB.QueryContext(ctx, `
	SELECT order_id, tenant_id, buyer_email, status, total,
	       attachment_filename, attachment_storage_key, created_at, updated_at
	FROM order_reads
	WHERE `+whereSQL+`
	ORDER BY created_at DESC, order_id DESC
	LIMIT ? OFFSET ?
	`, listArgs...)
	if err != nil {
		return storage.ViewPage{}, fmt.Errorf("list order views: %w", err)
	}
	defer rows.Close()

	page := storage.ViewPage{
		Views: make([]storage.OrderViewRecord, 0, filter.Limit),
		Total: total,
	}
	for rows.Next() {
		record, scanErr := scanOrderView(rows.Scan)
		if scanErr != nil {
			return storage.ViewPage{}, fmt.Errorf("scan order view row: %w", scanErr)
		}
		page.Views = append(page.Views, record)
	}
	if err := rows.Err(); err != nil {
		return storage.ViewPage{}, fmt.Errorf("iterate order view rows: %w", err)
	}
	return page, nil
}

const (
	statusPending = "PENDING"
	statusPaid    = "PAID"
)

const orderSelectColumns = `
SELECT order_id, tenant_id, request_id, buyer_email, buyer_name,
       items_json, attachment_json, status, total, created_at, updated_at
FROM orders`

type scanner func(dest ...any) error

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendOutboxExec(ctx context.Context, execer sqlExecer, evt storage.OutboxAppend, at time.Time) error {
	kind := strings.TrimSpace(evt.Kind)
	payload := strings.TrimSpace(evt.PayloadJSON)
	if kind == "" {
		return fmt.Errorf("event kind is required")
	}
	if payload == "" {
		payload = "{}"
	}
	if _, err := execer.ExecContext(ctx, `
	INSERT INTO events_outbox (kind, payload_json, published, created_at)
	VALUES (?, ?, 0, ?)
	`, kind, payload, toMillis(at)); err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

func normalizeOrderRecord(record storage.OrderRecord) (storage.OrderRecord, error) {
	record.OrderID = strings.TrimSpace(record.OrderID)
	record.TenantID = strings.TrimSpace(record.TenantID)
	record.RequestID = strings.TrimSpace(record.RequestID)
	record.BuyerEmail = strings.TrimSpace(record.BuyerEmail)
	record.BuyerName = strings.TrimSpace(record.BuyerName)
	record.Status = strings.TrimSpace(record.Status)
	if record.OrderID == "" {
		return storage.OrderRecord{}, fmt.Errorf("order id is required")
	}
	if record.TenantID == "" {
		return storage.OrderRecord{}, fmt.Errorf("tenant id is required")
	}
	if record.RequestID == "" {
		return storage.OrderRecord{}, fmt.Errorf("request id is required")
	}
	if record.Status == "" {
		return storage.OrderRecord{}, fmt.Errorf("status is required")
	}
	if len(record.Items) == 0 {
		return storage.OrderRecord{}, fmt.Errorf("items are required")
	}
	if record.CreatedAt.IsZero() {
		return storage.OrderRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.OrderRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeOrderViewRecord(record storage.OrderViewRecord) (storage.OrderViewRecord, error) {
	record.OrderID = strings.TrimSpace(record.OrderID)
	record.TenantID = strings.TrimSpace(record.TenantID)
	record.BuyerEmail = strings.TrimSpace(record.BuyerEmail)
	record.Status = strings.TrimSpace(record.Status)
	if record.OrderID == "" {
		return storage.OrderViewRecord{}, fmt.Errorf("order id is required")
	}
	if record.TenantID == "" {
		return storage.OrderViewRecord{}, fmt.Errorf("tenant id is required")
	}
	if record.Status == "" {
		return storage.OrderViewRecord{}, fmt.Errorf("status is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.OrderViewRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.OrderViewRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func scanOrder(scan scanner) (storage.OrderRecord, error) {
	var record storage.OrderRecord
	var itemsJSON string
	var attachmentJSON sql.NullString
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.OrderID,
		&record.TenantID,
		&record.RequestID,
		&record.BuyerEmail,
		&record.BuyerName,
		&itemsJSON,
		&attachmentJSON,
		&record.Status,
		&record.Total,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OrderRecord{}, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &record.Items); err != nil {
		return storage.OrderRecord{}, fmt.Errorf("unmarshal order items: %w", err)
	}
	if attachmentJSON.Valid {
		var attachment storage.Attachment
		if err := json.Unmarshal([]byte(attachmentJSON.String), &attachment); err != nil {
			return storage.OrderRecord{}, fmt.Errorf("unmarshal order attachment: %w", err)
		}
		record.Attachment = &attachment
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanOrderView(scan scanner) (storage.OrderViewRecord, error) {
	var record storage.OrderViewRecord
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.OrderID,
		&record.TenantID,
		&record.BuyerEmail,
		&record.Status,
		&record.Total,
		&record.AttachmentFilename,
		&record.AttachmentStorageKey,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OrderViewRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
