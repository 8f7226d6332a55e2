package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const serviceColumns = `id, name, provider_name, imp_number, credential_format,
			supported_capabilities, api_base_url, web_base_url, max_upload_mb,
			wb_provider_key, quirks, oauth2_client_config_id, oauth1_client_config_id,
			created, modified`

// CreateService stores a new external service.
func (s *Store) CreateService(ctx context.Context, service *models.ExternalService) error {
	if err := service.Validate(); err != nil {
		return err
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO external_services (
			name, provider_name, imp_number, credential_format,
			supported_capabilities, api_base_url, web_base_url, max_upload_mb,
			wb_provider_key, quirks, oauth2_client_config_id, oauth1_client_config_id,
			created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		service.Name,
		service.ProviderName,
		service.ImpNumber,
		string(service.CredentialFormat),
		int(service.SupportedCapabilities),
		service.APIBaseURL,
		service.WebBaseURL,
		service.MaxUploadMB,
		service.WBProviderKey,
		int(service.Quirks),
		nullInt64(service.OAuth2ClientConfigID),
		nullInt64(service.OAuth1ClientConfigID),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting service: %w", err)
	}
	service.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting service id: %w", err)
	}
	service.Created, service.Modified = now, now
	return nil
}

// GetService retrieves an external service by id.
func (s *Store) GetService(ctx context.Context, id int64) (*models.ExternalService, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM external_services WHERE id = ?`, id)
	return scanService(row)
}

// ListServices returns every configured service.
func (s *Store) ListServices(ctx context.Context) ([]*models.ExternalService, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM external_services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying services: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var services []*models.ExternalService
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service rows: %w", err)
	}
	return services, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*models.ExternalService, error) {
	var (
		service       models.ExternalService
		format        string
		caps, quirks  int
		oauth2ID      sql.NullInt64
		oauth1ID      sql.NullInt64
		created, modi string
	)
	err := row.Scan(
		&service.ID, &service.Name, &service.ProviderName, &service.ImpNumber,
		&format, &caps, &service.APIBaseURL, &service.WebBaseURL,
		&service.MaxUploadMB, &service.WBProviderKey, &quirks,
		&oauth2ID, &oauth1ID, &created, &modi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning service row: %w", err)
	}
	service.CredentialFormat = credentials.Format(format)
	service.SupportedCapabilities = capabilitiesFromInt(caps)
	service.Quirks = models.ServiceQuirks(quirks)
	service.OAuth2ClientConfigID = scanNullInt64(oauth2ID)
	service.OAuth1ClientConfigID = scanNullInt64(oauth1ID)
	if service.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if service.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &service, nil
}

// CreateOAuth2ClientConfig stores an OAuth2 app registration.
func (s *Store) CreateOAuth2ClientConfig(ctx context.Context, config *models.OAuth2ClientConfig) error {
	scopes, err := json.Marshal(config.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth2_client_configs (
			auth_uri, token_uri, client_id, client_secret, scopes, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		config.AuthURI, config.TokenURI, config.ClientID, config.ClientSecret,
		string(scopes), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting oauth2 client config: %w", err)
	}
	config.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting oauth2 client config id: %w", err)
	}
	config.Created, config.Modified = now, now
	return nil
}

// GetOAuth2ClientConfig retrieves an OAuth2 app registration by id.
func (s *Store) GetOAuth2ClientConfig(ctx context.Context, id int64) (*models.OAuth2ClientConfig, error) {
	var (
		config        models.OAuth2ClientConfig
		scopes        string
		created, modi string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, auth_uri, token_uri, client_id, client_secret, scopes, created, modified
		FROM oauth2_client_configs WHERE id = ?`, id,
	).Scan(&config.ID, &config.AuthURI, &config.TokenURI, &config.ClientID,
		&config.ClientSecret, &scopes, &created, &modi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning oauth2 client config: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &config.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	if config.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if config.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &config, nil
}

// CreateOAuth1ClientConfig stores an OAuth1a app registration.
func (s *Store) CreateOAuth1ClientConfig(ctx context.Context, config *models.OAuth1ClientConfig) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth1_client_configs (
			request_token_url, auth_url, access_token_url, client_key, client_secret,
			created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		config.RequestTokenURL, config.AuthURL, config.AccessTokenURL,
		config.ClientKey, config.ClientSecret, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting oauth1 client config: %w", err)
	}
	config.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting oauth1 client config id: %w", err)
	}
	config.Created, config.Modified = now, now
	return nil
}

// GetOAuth1ClientConfig retrieves an OAuth1a app registration by id.
func (s *Store) GetOAuth1ClientConfig(ctx context.Context, id int64) (*models.OAuth1ClientConfig, error) {
	var (
		config        models.OAuth1ClientConfig
		created, modi string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_token_url, auth_url, access_token_url, client_key, client_secret,
			created, modified
		FROM oauth1_client_configs WHERE id = ?`, id,
	).Scan(&config.ID, &config.RequestTokenURL, &config.AuthURL, &config.AccessTokenURL,
		&config.ClientKey, &config.ClientSecret, &created, &modi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning oauth1 client config: %w", err)
	}
	if config.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if config.Modified, err = parseTime(modi); err != nil {
		return nil, err
	}
	return &config, nil
}
