package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const accountColumns = `id, user_reference_id, external_service_id, credentials_id,
			authorized_capabilities, external_account_id, display_name,
			api_base_url_override, created, modified`

// CreateAccount stores a new authorized account.
func (s *Store) CreateAccount(ctx context.Context, account *models.AuthorizedAccount) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authorized_accounts (
			user_reference_id, external_service_id, credentials_id,
			authorized_capabilities, external_account_id, display_name,
			api_base_url_override, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.UserReferenceID,
		account.ExternalServiceID,
		nullInt64(account.CredentialsID),
		int(account.AuthorizedCapabilities),
		account.ExternalAccountID,
		account.DisplayName,
		account.APIBaseURLOverride,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	account.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting account id: %w", err)
	}
	account.Created, account.Modified = now, now
	return nil
}

// GetAccount retrieves an authorized account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.AuthorizedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM authorized_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// UpdateAccount rewrites the account's mutable fields.
func (s *Store) UpdateAccount(ctx context.Context, account *models.AuthorizedAccount) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorized_accounts SET
			user_reference_id = ?, external_service_id = ?, credentials_id = ?,
			authorized_capabilities = ?, external_account_id = ?, display_name = ?,
			api_base_url_override = ?, modified = ?
		WHERE id = ?`,
		account.UserReferenceID,
		account.ExternalServiceID,
		nullInt64(account.CredentialsID),
		int(account.AuthorizedCapabilities),
		account.ExternalAccountID,
		account.DisplayName,
		account.APIBaseURLOverride,
		formatTime(now),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking account update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	account.Modified = now
	return nil
}

// DeleteAccount removes an account and its configured addons.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM configured_addons WHERE authorized_account_id = ?`, id); err != nil {
		return fmt.Errorf("deleting configured addons: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM authorized_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking account delete: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing account delete: %w", err)
	}
	return nil
}

// ListAccountsForUser returns the user's accounts. With activeOnly, accounts
// of deactivated users are filtered out.
func (s *Store) ListAccountsForUser(ctx context.Context, userID int64, activeOnly bool) ([]*models.AuthorizedAccount, error) {
	query := `SELECT ` + prefixColumns("a.", accountColumns) + `
		FROM authorized_accounts a
		JOIN user_references u ON u.id = a.user_reference_id
		WHERE a.user_reference_id = ?`
	if activeOnly {
		query += ` AND u.deactivated IS NULL`
	}
	query += ` ORDER BY a.id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*models.AuthorizedAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// GetAccountByCredentialsID walks the credentials FK backwards.
func (s *Store) GetAccountByCredentialsID(ctx context.Context, credentialsID int64) (*models.AuthorizedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM authorized_accounts WHERE credentials_id = ?`,
		credentialsID)
	return scanAccount(row)
}

func scanAccount(row rowScanner) (*models.AuthorizedAccount, error) {
	var (
		account       models.AuthorizedAccount
		credentialsID sql.NullInt64
		caps          int
		created, modi string
	)
	err := row.Scan(
		&account.ID, &account.UserReferenceID, &account.ExternalServiceID,
		&credentialsID, &caps, &account.ExternalAccountID, &account.DisplayName,
		&account.APIBaseURLOverride, &created, &modi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account row: %w", err)
	}
	account.CredentialsID = scanNullInt64(credentialsID)
	account.AuthorizedCapabilities = capabilitiesFromInt(caps)
	if account.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if account.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &account, nil
}

const addonColumns = `id, authorized_account_id, resource_reference_id,
			connected_capabilities, connected_root_id, display_name, created, modified`

// CreateConfiguredAddon stores a new configured addon.
func (s *Store) CreateConfiguredAddon(ctx context.Context, addon *models.ConfiguredAddon) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO configured_addons (
			authorized_account_id, resource_reference_id, connected_capabilities,
			connected_root_id, display_name, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		addon.AuthorizedAccountID,
		addon.ResourceReferenceID,
		int(addon.ConnectedCapabilities),
		addon.ConnectedRootID,
		addon.DisplayName,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting configured addon: %w", err)
	}
	addon.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting configured addon id: %w", err)
	}
	addon.Created, addon.Modified = now, now
	return nil
}

// GetConfiguredAddon retrieves a configured addon by id.
func (s *Store) GetConfiguredAddon(ctx context.Context, id int64) (*models.ConfiguredAddon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+addonColumns+` FROM configured_addons WHERE id = ?`, id)
	return scanConfiguredAddon(row)
}

// DeleteConfiguredAddon removes a configured addon.
func (s *Store) DeleteConfiguredAddon(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM configured_addons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting configured addon: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking configured addon delete: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindConfiguredAddon resolves the waterbutler addressing pair: the
// resource URI and the service's waterbutler provider key.
func (s *Store) FindConfiguredAddon(ctx context.Context, resourceURI, wbProviderKey string) (*models.ConfiguredAddon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixColumns("c.", addonColumns)+`
		FROM configured_addons c
		JOIN resource_references r ON r.id = c.resource_reference_id
		JOIN authorized_accounts a ON a.id = c.authorized_account_id
		JOIN external_services e ON e.id = a.external_service_id
		WHERE r.resource_uri = ?
		  AND (e.wb_provider_key = ? OR (e.wb_provider_key = '' AND e.provider_name = ?))`,
		resourceURI, wbProviderKey, wbProviderKey)
	return scanConfiguredAddon(row)
}

func scanConfiguredAddon(row rowScanner) (*models.ConfiguredAddon, error) {
	var (
		addon         models.ConfiguredAddon
		caps          int
		created, modi string
	)
	err := row.Scan(
		&addon.ID, &addon.AuthorizedAccountID, &addon.ResourceReferenceID,
		&caps, &addon.ConnectedRootID, &addon.DisplayName, &created, &modi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning configured addon row: %w", err)
	}
	addon.ConnectedCapabilities = capabilitiesFromInt(caps)
	if addon.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if addon.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &addon, nil
}
