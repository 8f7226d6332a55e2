package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const invocationColumns = `id, status, operation_name, args, result, error_kind,
			error_message, error_context, by_user_id, authorized_account_id,
			configured_addon_id, created, modified`

// CreateInvocation stores a new invocation record, normally in STARTING.
func (s *Store) CreateInvocation(ctx context.Context, inv *models.OperationInvocation) error {
	now := time.Now()
	args := inv.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_invocations (
			id, status, operation_name, args, result, error_kind, error_message,
			error_context, by_user_id, authorized_account_id, configured_addon_id,
			created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		string(inv.Status),
		inv.OperationName,
		string(args),
		nullRawJSON(inv.Result),
		inv.ErrorKind,
		inv.ErrorMessage,
		inv.ErrorContext,
		inv.ByUserID,
		inv.AuthorizedAccountID,
		nullInt64(inv.ConfiguredAddonID),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting invocation: %w", err)
	}
	inv.Created, inv.Modified = now, now
	return nil
}

// GetInvocation retrieves an invocation by id.
func (s *Store) GetInvocation(ctx context.Context, id string) (*models.OperationInvocation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM operation_invocations WHERE id = ?`, id)
	return scanInvocation(row)
}

// ClaimInvocation is the dibs compare-and-set: it moves the invocation from
// STARTING to IN_PROGRESS only if no other worker already did.
func (s *Store) ClaimInvocation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operation_invocations SET status = ?, modified = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusInProgress), formatTime(time.Now()),
		id, string(models.StatusStarting),
	)
	if err != nil {
		return fmt.Errorf("claiming invocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking invocation claim: %w", err)
	}
	if affected == 0 {
		// Either the row is missing or another worker holds it.
		if _, err := s.GetInvocation(ctx, id); err != nil {
			return err
		}
		return storage.ErrStaleStatus
	}
	return nil
}

// FinalizeInvocation writes the invocation's terminal status along with its
// result or error fields.
func (s *Store) FinalizeInvocation(ctx context.Context, inv *models.OperationInvocation) error {
	if !inv.Status.Terminal() {
		return fmt.Errorf("finalizing invocation %s with non-terminal status %s", inv.ID, inv.Status)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE operation_invocations SET
			status = ?, result = ?, error_kind = ?, error_message = ?,
			error_context = ?, modified = ?
		WHERE id = ?`,
		string(inv.Status),
		nullRawJSON(inv.Result),
		inv.ErrorKind,
		inv.ErrorMessage,
		inv.ErrorContext,
		formatTime(now),
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("finalizing invocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking invocation finalize: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	inv.Modified = now
	return nil
}

// ListInvocationsByOperation returns the newest invocations of one
// operation.
func (s *Store) ListInvocationsByOperation(ctx context.Context, operationName string, limit int) ([]*models.OperationInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invocationColumns+` FROM operation_invocations
		WHERE operation_name = ? ORDER BY created DESC LIMIT ?`,
		operationName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invocations []*models.OperationInvocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation rows: %w", err)
	}
	return invocations, nil
}

func scanInvocation(row rowScanner) (*models.OperationInvocation, error) {
	var (
		inv           models.OperationInvocation
		status        string
		args          string
		result        sql.NullString
		addonID       sql.NullInt64
		created, modi string
	)
	err := row.Scan(
		&inv.ID, &status, &inv.OperationName, &args, &result,
		&inv.ErrorKind, &inv.ErrorMessage, &inv.ErrorContext,
		&inv.ByUserID, &inv.AuthorizedAccountID, &addonID,
		&created, &modi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning invocation row: %w", err)
	}
	inv.Status = models.InvocationStatus(status)
	inv.Args = json.RawMessage(args)
	if result.Valid {
		inv.Result = json.RawMessage(result.String)
	}
	inv.ConfiguredAddonID = scanNullInt64(addonID)
	if inv.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if inv.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &inv, nil
}

func nullRawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
