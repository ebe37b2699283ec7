package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// PostgresStore is a Registry, Seeder and PaymentRequestStore backed by Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS uma_domains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		min_sendable_msats BIGINT NOT NULL,
		max_sendable_msats BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS uma_domain_currencies (
		domain_id TEXT NOT NULL REFERENCES uma_domains(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		code VARCHAR(10) NOT NULL,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		decimals INTEGER NOT NULL,
		min_sendable BIGINT NOT NULL DEFAULT 0,
		max_sendable BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (domain_id, code)
	);
	CREATE TABLE IF NOT EXISTS uma_users (
		id TEXT PRIMARY KEY,
		domain_id TEXT NOT NULL REFERENCES uma_domains(id) ON DELETE CASCADE,
		username TEXT NOT NULL,
		spark_public_key TEXT,
		UNIQUE (domain_id, username)
	);
	CREATE TABLE IF NOT EXISTS uma_chain_addresses (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES uma_users(id) ON DELETE CASCADE,
		chain_key VARCHAR(32) NOT NULL,
		address TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS idx_chain_addresses_user ON uma_chain_addresses(user_id, id);
	CREATE TABLE IF NOT EXISTS uma_payment_requests (
		id UUID PRIMARY KEY,
		nonce TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		amount_msats BIGINT NOT NULL,
		currency VARCHAR(10) NOT NULL DEFAULT '',
		settlement_layer VARCHAR(32) NOT NULL,
		asset_identifier VARCHAR(32) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) GetDomain(ctx context.Context, name string) (*Domain, error) {
	domain := &Domain{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, min_sendable_msats, max_sendable_msats, description
		FROM uma_domains WHERE name = $1`, normalizeDomain(name),
	).Scan(&domain.ID, &domain.Name, &domain.MinSendableMsats, &domain.MaxSendableMsats, &domain.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query domain %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, symbol, decimals, min_sendable, max_sendable
		FROM uma_domain_currencies WHERE domain_id = $1 ORDER BY position`, domain.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var currency DomainCurrency
		if err := rows.Scan(&currency.Code, &currency.Name, &currency.Symbol, &currency.Decimals,
			&currency.MinSendable, &currency.MaxSendable); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		domain.Currencies = append(domain.Currencies, currency)
	}
	return domain, rows.Err()
}

func (s *PostgresStore) GetUser(ctx context.Context, domainID, username string) (*User, error) {
	user := &User{}
	var sparkKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, username, spark_public_key
		FROM uma_users WHERE domain_id = $1 AND username = $2`, domainID, normalizeUsername(username),
	).Scan(&user.ID, &user.DomainID, &user.Username, &sparkKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	if sparkKey.Valid {
		user.SparkPublicKey = &sparkKey.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_key, address, is_active
		FROM uma_chain_addresses WHERE user_id = $1 ORDER BY id`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses of %s: %w", username, err)
	}
	defer rows.Close()
	for rows.Next() {
		var address ChainAddress
		if err := rows.Scan(&address.ChainKey, &address.Address, &address.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		user.Addresses = append(user.Addresses, address)
	}
	return user, rows.Err()
}

func (s *PostgresStore) PutDomain(ctx context.Context, domain *Domain) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO uma_domains (id, name, min_sendable_msats, max_sendable_msats, description)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = $2, min_sendable_msats = $3, max_sendable_msats = $4, description = $5`,
			domain.ID, normalizeDomain(domain.Name), domain.MinSendableMsats, domain.MaxSendableMsats, domain.Description,
		); err != nil {
			return fmt.Errorf("failed to upsert domain %s: %w", domain.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM uma_domain_currencies WHERE domain_id = $1`, domain.ID); err != nil {
			return err
		}
		for i, currency := range domain.Currencies {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO uma_domain_currencies (domain_id, position, code, name, symbol, decimals, min_sendable, max_sendable)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				domain.ID, i, currency.Code, currency.Name, currency.Symbol, currency.Decimals,
				currency.MinSendable, currency.MaxSendable,
			); err != nil {
				return fmt.Errorf("failed to insert currency %s: %w", currency.Code, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) PutUser(ctx context.Context, user *User) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO uma_users (id, domain_id, username, spark_public_key)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET domain_id = $2, username = $3, spark_public_key = $4`,
			user.ID, user.DomainID, normalizeUsername(user.Username), user.SparkPublicKey,
		); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", user.Username, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM uma_chain_addresses WHERE user_id = $1`, user.ID); err != nil {
			return err
		}
		for _, address := range user.Addresses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO uma_chain_addresses (user_id, chain_key, address, is_active) VALUES ($1, $2, $3, $4)`,
				user.ID, address.ChainKey, address.Address, address.IsActive,
			); err != nil {
				return fmt.Errorf("failed to insert %s address: %w", address.ChainKey, err)
			}
		}
		return nil
	})
}

// Create inserts the request in a single statement. The UNIQUE constraint on nonce makes the check atomic.
func (s *PostgresStore) Create(ctx context.Context, request *PaymentRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uma_payment_requests
			(id, nonce, user_id, amount_msats, currency, settlement_layer, asset_identifier, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		request.ID, request.Nonce, request.UserID, request.AmountMsats, request.Currency,
		request.SettlementLayer, request.AssetIdentifier, request.CreatedAt, request.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateNonce
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, nonce string) (*PaymentRequest, error) {
	request := &PaymentRequest{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nonce, user_id, amount_msats, currency, settlement_layer, asset_identifier, created_at, expires_at
		FROM uma_payment_requests WHERE nonce = $1`, nonce,
	).Scan(&request.ID, &request.Nonce, &request.UserID, &request.AmountMsats, &request.Currency,
		&request.SettlementLayer, &request.AssetIdentifier, &request.CreatedAt, &request.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
