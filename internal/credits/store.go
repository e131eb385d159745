package credits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store defines the data access surface for credits and the transaction
// ledger. The conditional transfer primitive is the only mutation guard
// against double-sale; see TransferOwnership.
type Store interface {
	CreateCredit(ctx context.Context, credit *Credit) error
	GetCredit(ctx context.Context, id uuid.UUID) (*Credit, error)
	ListCredits(ctx context.Context, filters *CreditFilters) ([]*Credit, int, error)

	// TransferOwnership performs the optimistic-concurrency update: the row
	// mutates only if its current owner and status still match the snapshot
	// the caller read. Returns ErrNoRowsMatched when another operation won
	// the race, ErrPermissionDenied when access control rejects the write.
	TransferOwnership(ctx context.Context, id, expectedOwner, newOwner uuid.UUID) error

	// ForceTransferOwnership bypasses row-level access control. Only wired
	// in privileged (server-side) execution contexts.
	ForceTransferOwnership(ctx context.Context, id, newOwner uuid.UUID) (*Credit, error)

	// UpdateCreditStatus sets the status and merges metadataPatch into the
	// credit's metadata, returning the updated row.
	UpdateCreditStatus(ctx context.Context, id uuid.UUID, status CreditStatus, metadataPatch map[string]interface{}) (*Credit, error)

	InsertTransaction(ctx context.Context, txn *Transaction) error
	ListTransactions(ctx context.Context, filters *TransactionFilters) ([]*Transaction, int, error)

	GetLedgerStats(ctx context.Context) (*LedgerStats, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const creditColumns = `id, producer_id, owner_id, volume, status, blockchain_reference, metadata, retired_at, created_at, updated_at`

func (s *PostgresStore) CreateCredit(ctx context.Context, credit *Credit) error {
	query := `
		INSERT INTO credits (
			id, producer_id, owner_id, volume, status, blockchain_reference,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	metadata := credit.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	_, err := s.db.ExecContext(ctx, query,
		credit.ID, credit.ProducerID, credit.OwnerID, credit.Volume, credit.Status,
		credit.BlockchainReference, metadata, credit.CreatedAt, credit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit: %w", mapPgError(err))
	}

	return nil
}

func (s *PostgresStore) GetCredit(ctx context.Context, id uuid.UUID) (*Credit, error) {
	query := `SELECT ` + creditColumns + ` FROM credits WHERE id = $1`

	var credit Credit
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&credit.ID, &credit.ProducerID, &credit.OwnerID, &credit.Volume, &credit.Status,
		&credit.BlockchainReference, &credit.Metadata, &credit.RetiredAt,
		&credit.CreatedAt, &credit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCreditNotFound
		}
		return nil, fmt.Errorf("failed to get credit: %w", mapPgError(err))
	}

	return &credit, nil
}

func (s *PostgresStore) ListCredits(ctx context.Context, filters *CreditFilters) ([]*Credit, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.Status != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
	}

	if filters.OwnerID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argCount))
		args = append(args, *filters.OwnerID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := `SELECT COUNT(*) FROM credits` + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count credits: %w", mapPgError(err))
	}

	offset := (filters.Page - 1) * filters.PageSize
	if filters.Page < 1 {
		offset = 0
	}

	argCount++
	limitArg := argCount
	argCount++
	offsetArg := argCount

	query := `SELECT ` + creditColumns + ` FROM credits` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", limitArg, offsetArg)
	args = append(args, filters.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list credits: %w", mapPgError(err))
	}
	defer rows.Close()

	var creditList []*Credit
	for rows.Next() {
		var credit Credit
		err := rows.Scan(
			&credit.ID, &credit.ProducerID, &credit.OwnerID, &credit.Volume, &credit.Status,
			&credit.BlockchainReference, &credit.Metadata, &credit.RetiredAt,
			&credit.CreatedAt, &credit.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan credit: %w", err)
		}
		creditList = append(creditList, &credit)
	}

	return creditList, totalCount, nil
}

func (s *PostgresStore) TransferOwnership(ctx context.Context, id, expectedOwner, newOwner uuid.UUID) error {
	query := `
		UPDATE credits SET
			owner_id = $3,
			status = $4,
			updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, id, expectedOwner, newOwner,
		CreditStatusOwned, CreditStatusIssued)
	if err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", mapPgError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNoRowsMatched
	}

	return nil
}

func (s *PostgresStore) ForceTransferOwnership(ctx context.Context, id, newOwner uuid.UUID) (*Credit, error) {
	query := `
		UPDATE credits SET
			owner_id = $2,
			status = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING ` + creditColumns

	var credit Credit
	err := s.db.QueryRowContext(ctx, query, id, newOwner, CreditStatusOwned, CreditStatusIssued).Scan(
		&credit.ID, &credit.ProducerID, &credit.OwnerID, &credit.Volume, &credit.Status,
		&credit.BlockchainReference, &credit.Metadata, &credit.RetiredAt,
		&credit.CreatedAt, &credit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsMatched
		}
		return nil, fmt.Errorf("failed to force transfer: %w", mapPgError(err))
	}

	return &credit, nil
}

func (s *PostgresStore) UpdateCreditStatus(ctx context.Context, id uuid.UUID, status CreditStatus, metadataPatch map[string]interface{}) (*Credit, error) {
	patch := metadataPatch
	if patch == nil {
		patch = map[string]interface{}{}
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata patch: %w", err)
	}

	query := `
		UPDATE credits SET
			status = $2,
			metadata = metadata || $3::jsonb,
			retired_at = CASE WHEN $2 = 'retired' THEN NOW() ELSE retired_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + creditColumns

	var credit Credit
	err = s.db.QueryRowContext(ctx, query, id, status, patchJSON).Scan(
		&credit.ID, &credit.ProducerID, &credit.OwnerID, &credit.Volume, &credit.Status,
		&credit.BlockchainReference, &credit.Metadata, &credit.RetiredAt,
		&credit.CreatedAt, &credit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCreditNotFound
		}
		return nil, fmt.Errorf("failed to update credit status: %w", mapPgError(err))
	}

	return &credit, nil
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, txn *Transaction) error {
	query := `
		INSERT INTO transactions (
			id, credit_id, from_owner_id, to_owner_id, type, volume, price,
			external_reference, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		txn.ID, txn.CreditID, txn.FromOwnerID, txn.ToOwnerID, txn.Type,
		txn.Volume, txn.Price, txn.ExternalReference, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", mapPgError(err))
	}

	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filters *TransactionFilters) ([]*Transaction, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.CreditID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("credit_id = $%d", argCount))
		args = append(args, *filters.CreditID)
	}

	if filters.Type != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("type = $%d", argCount))
		args = append(args, *filters.Type)
	}

	if filters.CreatedAfter != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCount))
		args = append(args, *filters.CreatedAfter)
	}

	if filters.CreatedBefore != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argCount))
		args = append(args, *filters.CreatedBefore)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := `SELECT COUNT(*) FROM transactions` + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", mapPgError(err))
	}

	offset := (filters.Page - 1) * filters.PageSize
	if filters.Page < 1 {
		offset = 0
	}

	argCount++
	limitArg := argCount
	argCount++
	offsetArg := argCount

	query := `
		SELECT id, credit_id, from_owner_id, to_owner_id, type, volume, price,
			   external_reference, created_at
		FROM transactions
	` + whereClause + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", limitArg, offsetArg)
	args = append(args, filters.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", mapPgError(err))
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		var txn Transaction
		err := rows.Scan(
			&txn.ID, &txn.CreditID, &txn.FromOwnerID, &txn.ToOwnerID, &txn.Type,
			&txn.Volume, &txn.Price, &txn.ExternalReference, &txn.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	return txns, totalCount, nil
}

func (s *PostgresStore) GetLedgerStats(ctx context.Context) (*LedgerStats, error) {
	stats := &LedgerStats{
		CreditsByStatus: make(map[CreditStatus]int64),
		VolumeByStatus:  make(map[CreditStatus]float64),
		ComputedAt:      time.Now(),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(volume), 0) FROM credits GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate credits: %w", mapPgError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var status CreditStatus
		var count int64
		var volume float64
		if err := rows.Scan(&status, &count, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan credit aggregate: %w", err)
		}
		stats.CreditsByStatus[status] = count
		stats.VolumeByStatus[status] = volume
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(price), 0) FROM transactions WHERE type = $1`,
		TransactionTypeTransfer,
	).Scan(&stats.TransactionCount, &stats.TradedValue)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", mapPgError(err))
	}

	return stats, nil
}

// mapPgError converts driver errors into the store's typed errors.
// insufficient_privilege comes back when row-level security rejects a
// mutation outright; callers must be able to tell it apart from a
// conditional update that simply matched nothing.
func mapPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42501" {
		return ErrPermissionDenied
	}
	return err
}
