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

// EnsureUser returns the user reference for a URI, creating it if new.
func (s *Store) EnsureUser(ctx context.Context, userURI string) (*models.UserReference, error) {
	user, err := s.GetUserByURI(ctx, userURI)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_references (user_uri, created, modified) VALUES (?, ?, ?)`,
		userURI, formatTime(now), formatTime(now),
	)
	if err != nil {
		// Lost a race with a concurrent EnsureUser for the same URI.
		if isUniqueViolation(err) {
			return s.GetUserByURI(ctx, userURI)
		}
		return nil, fmt.Errorf("inserting user reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user reference id: %w", err)
	}
	return &models.UserReference{ID: id, UserURI: userURI, Created: now, Modified: now}, nil
}

// GetUser retrieves a user reference by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.UserReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_uri, deactivated, created, modified
		FROM user_references WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByURI retrieves a user reference by its parent-platform URI.
func (s *Store) GetUserByURI(ctx context.Context, userURI string) (*models.UserReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_uri, deactivated, created, modified
		FROM user_references WHERE user_uri = ?`, userURI)
	return scanUser(row)
}

func scanUser(row rowScanner) (*models.UserReference, error) {
	var (
		user          models.UserReference
		deactivated   sql.NullString
		created, modi string
	)
	err := row.Scan(&user.ID, &user.UserURI, &deactivated, &created, &modi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user reference row: %w", err)
	}
	if user.Deactivated, err = parseNullTime(deactivated); err != nil {
		return nil, err
	}
	if user.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if user.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateUser marks the user inactive. Idempotent.
func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_references
		SET deactivated = COALESCE(deactivated, ?), modified = ?
		WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deactivation: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MergeUsers transfers fromID's accounts to toID and deactivates fromID,
// all in one transaction.
func (s *Store) MergeUsers(ctx context.Context, fromID, toID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	for _, id := range []int64{fromID, toID} {
		var exists int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM user_references WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("looking up user %d: %w", id, err)
		}
	}

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		UPDATE authorized_accounts SET user_reference_id = ?, modified = ?
		WHERE user_reference_id = ?`,
		toID, now, fromID,
	); err != nil {
		return fmt.Errorf("transferring accounts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_references
		SET deactivated = COALESCE(deactivated, ?), modified = ?
		WHERE id = ?`,
		now, now, fromID,
	); err != nil {
		return fmt.Errorf("deactivating merged user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	return nil
}

// EnsureResource returns the resource reference for a URI, creating it if
// new.
func (s *Store) EnsureResource(ctx context.Context, resourceURI string) (*models.ResourceReference, error) {
	resource, err := s.getResourceByURI(ctx, resourceURI)
	if err == nil {
		return resource, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_references (resource_uri, created, modified) VALUES (?, ?, ?)`,
		resourceURI, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.getResourceByURI(ctx, resourceURI)
		}
		return nil, fmt.Errorf("inserting resource reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting resource reference id: %w", err)
	}
	return &models.ResourceReference{ID: id, ResourceURI: resourceURI, Created: now, Modified: now}, nil
}

// GetResource retrieves a resource reference by id.
func (s *Store) GetResource(ctx context.Context, id int64) (*models.ResourceReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_uri, created, modified
		FROM resource_references WHERE id = ?`, id)
	return scanResource(row)
}

func (s *Store) getResourceByURI(ctx context.Context, resourceURI string) (*models.ResourceReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_uri, created, modified
		FROM resource_references WHERE resource_uri = ?`, resourceURI)
	return scanResource(row)
}

func scanResource(row rowScanner) (*models.ResourceReference, error) {
	var (
		resource      models.ResourceReference
		created, modi string
	)
	err := row.Scan(&resource.ID, &resource.ResourceURI, &created, &modi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning resource reference row: %w", err)
	}
	if resource.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if resource.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &resource, nil
}
