package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLSource loads the account inventory from a MySQL `accounts` table.
//
// Expected schema: one row per account with JSON columns for the nested
// attributes:
//
//	CREATE TABLE accounts (
//	    id        VARCHAR(12) PRIMARY KEY,
//	    name      VARCHAR(255) NOT NULL,
//	    type      VARCHAR(64)  NOT NULL DEFAULT 'standard',
//	    joined    TIMESTAMP NULL,
//	    tags      JSON,
//	    org_units JSON,
//	    regions   JSON
//	);
type SQLSource struct {
	db  *sql.DB
	dsn string
}

const accountsQuery = `SELECT id, name, type, joined, tags, org_units, regions FROM accounts ORDER BY id ASC`

// NewSQLSource opens a MySQL connection pool for the given DSN. The
// connection is not validated until the first Fetch.
func NewSQLSource(dsn string) (*SQLSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open account index database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)
	return &SQLSource{db: db, dsn: dsn}, nil
}

// NewSQLSourceFromDB wraps an existing database handle. Used by tests.
func NewSQLSourceFromDB(db *sql.DB, key string) *SQLSource {
	return &SQLSource{db: db, dsn: key}
}

func (s *SQLSource) Key() string { return "sql:" + s.dsn }

func (s *SQLSource) Close() error { return s.db.Close() }

func (s *SQLSource) Fetch(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, accountsQuery)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			a          Account
			joined     sql.NullTime
			rawTags    []byte
			rawOUs     []byte
			rawRegions []byte
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &joined, &rawTags, &rawOUs, &rawRegions); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		if joined.Valid {
			a.Joined = joined.Time
		}
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &a.Tags); err != nil {
				return nil, fmt.Errorf("decode tags for account %s: %w", a.ID, err)
			}
		}
		if len(rawOUs) > 0 {
			if err := json.Unmarshal(rawOUs, &a.OrgUnits); err != nil {
				return nil, fmt.Errorf("decode org units for account %s: %w", a.ID, err)
			}
		}
		if len(rawRegions) > 0 {
			if err := json.Unmarshal(rawRegions, &a.Regions); err != nil {
				return nil, fmt.Errorf("decode regions for account %s: %w", a.ID, err)
			}
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}
