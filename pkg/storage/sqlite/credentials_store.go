package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const credentialsColumns = `id, format, encrypted_blob, key_salt, key_cost_log2,
			key_block_size, key_parallelization, state_token,
			oauth1_request_token, oauth1_request_token_secret, created, modified`

// CreateCredentials stores a new encrypted credentials record.
func (s *Store) CreateCredentials(ctx context.Context, creds *models.ExternalCredentials) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO external_credentials (
			format, encrypted_blob, key_salt, key_cost_log2, key_block_size,
			key_parallelization, state_token, oauth1_request_token,
			oauth1_request_token_secret, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(creds.Format),
		creds.EncryptedBlob,
		creds.KeyParameters.Salt,
		creds.KeyParameters.CostLog2,
		creds.KeyParameters.BlockSize,
		creds.KeyParameters.Parallelization,
		creds.StateToken,
		creds.OAuth1RequestToken,
		creds.OAuth1RequestTokenSecret,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting credentials: %w", err)
	}
	creds.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting credentials id: %w", err)
	}
	creds.Created, creds.Modified = now, now
	return nil
}

// GetCredentials retrieves a credentials record by id.
func (s *Store) GetCredentials(ctx context.Context, id int64) (*models.ExternalCredentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialsColumns+` FROM external_credentials WHERE id = ?`, id)
	return scanCredentials(row)
}

// GetCredentialsByStateToken resolves a pending OAuth2 authorization by its
// state token, which is unique at the schema level.
func (s *Store) GetCredentialsByStateToken(ctx context.Context, stateToken string) (*models.ExternalCredentials, error) {
	if stateToken == "" {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialsColumns+` FROM external_credentials WHERE state_token = ?`,
		stateToken)
	return scanCredentials(row)
}

// GetCredentialsByOAuth1RequestToken correlates an OAuth1a callback with
// its pending handshake.
func (s *Store) GetCredentialsByOAuth1RequestToken(ctx context.Context, requestToken string) (*models.ExternalCredentials, error) {
	if requestToken == "" {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialsColumns+` FROM external_credentials WHERE oauth1_request_token = ?`,
		requestToken)
	return scanCredentials(row)
}

// UpdateCredentials replaces the record's blob, key parameters, and
// handshake scratch fields, bumping modified.
func (s *Store) UpdateCredentials(ctx context.Context, creds *models.ExternalCredentials) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE external_credentials SET
			format = ?, encrypted_blob = ?, key_salt = ?, key_cost_log2 = ?,
			key_block_size = ?, key_parallelization = ?, state_token = ?,
			oauth1_request_token = ?, oauth1_request_token_secret = ?, modified = ?
		WHERE id = ?`,
		string(creds.Format),
		creds.EncryptedBlob,
		creds.KeyParameters.Salt,
		creds.KeyParameters.CostLog2,
		creds.KeyParameters.BlockSize,
		creds.KeyParameters.Parallelization,
		creds.StateToken,
		creds.OAuth1RequestToken,
		creds.OAuth1RequestTokenSecret,
		formatTime(now),
		creds.ID,
	)
	if err != nil {
		return fmt.Errorf("updating credentials: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking credentials update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	creds.Modified = now
	return nil
}

// DeleteCredentials removes a credentials record.
func (s *Store) DeleteCredentials(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM external_credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking credentials delete: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCredentialsModifiedBefore feeds the encryption-rotation sweep.
func (s *Store) ListCredentialsModifiedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.ExternalCredentials, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+credentialsColumns+` FROM external_credentials
		WHERE modified < ? ORDER BY modified LIMIT ?`,
		formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.ExternalCredentials
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, creds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials rows: %w", err)
	}
	return records, nil
}

func scanCredentials(row rowScanner) (*models.ExternalCredentials, error) {
	var (
		creds         models.ExternalCredentials
		format        string
		created, modi string
	)
	err := row.Scan(
		&creds.ID, &format, &creds.EncryptedBlob,
		&creds.KeyParameters.Salt, &creds.KeyParameters.CostLog2,
		&creds.KeyParameters.BlockSize, &creds.KeyParameters.Parallelization,
		&creds.StateToken, &creds.OAuth1RequestToken, &creds.OAuth1RequestTokenSecret,
		&created, &modi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning credentials row: %w", err)
	}
	creds.Format = credentials.Format(format)
	if creds.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if creds.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &creds, nil
}
