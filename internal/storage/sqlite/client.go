package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		listing_id TEXT PRIMARY KEY,
		entity_name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		fields TEXT NOT NULL,
		field_confidence TEXT NOT NULL,
		source_info TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(entity_name, entity_type)
	);
	CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(entity_type);
	CREATE INDEX IF NOT EXISTS idx_listings_updated ON listings(updated_at);

	CREATE TABLE IF NOT EXISTS venues (
		listing_id TEXT PRIMARY KEY,
		fields TEXT NOT NULL,
		field_confidence TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (listing_id) REFERENCES listings(listing_id) ON DELETE CASCADE
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) GetListingByIdentity(ctx context.Context, entityName, entityType string) (*models.Listing, error) {
	query := `
		SELECT listing_id, entity_name, entity_type, slug, fields, field_confidence, source_info, created_at, updated_at
		FROM listings
		WHERE entity_name = ? AND entity_type = ?
	`
	return c.scanListing(c.db.QueryRowContext(ctx, query, entityName, entityType))
}

func (c *Client) GetListingByID(ctx context.Context, listingID string) (*models.Listing, error) {
	query := `
		SELECT listing_id, entity_name, entity_type, slug, fields, field_confidence, source_info, created_at, updated_at
		FROM listings
		WHERE listing_id = ?
	`
	return c.scanListing(c.db.QueryRowContext(ctx, query, listingID))
}

func (c *Client) scanListing(row *sql.Row) (*models.Listing, error) {
	var listing models.Listing
	var fieldsJSON, confJSON string
	var sourceJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&listing.ListingID,
		&listing.EntityName,
		&listing.EntityType,
		&listing.Slug,
		&fieldsJSON,
		&confJSON,
		&sourceJSON,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &listing.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode listing fields: %w", err)
	}
	if err := json.Unmarshal([]byte(confJSON), &listing.FieldConfidence); err != nil {
		return nil, fmt.Errorf("failed to decode field confidence: %w", err)
	}
	if sourceJSON.Valid && sourceJSON.String != "" {
		if err := json.Unmarshal([]byte(sourceJSON.String), &listing.SourceInfo); err != nil {
			return nil, fmt.Errorf("failed to decode source info: %w", err)
		}
	}

	listing.CreatedAt = time.Unix(createdAt, 0)
	listing.UpdatedAt = time.Unix(updatedAt, 0)

	return &listing, nil
}

func (c *Client) GetVenue(ctx context.Context, listingID string) (*models.Venue, error) {
	query := `SELECT listing_id, fields, field_confidence, created_at, updated_at FROM venues WHERE listing_id = ?`

	var venue models.Venue
	var fieldsJSON, confJSON string
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, listingID).Scan(
		&venue.ListingID,
		&fieldsJSON,
		&confJSON,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &venue.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode venue fields: %w", err)
	}
	if err := json.Unmarshal([]byte(confJSON), &venue.FieldConfidence); err != nil {
		return nil, fmt.Errorf("failed to decode field confidence: %w", err)
	}

	venue.CreatedAt = time.Unix(createdAt, 0)
	venue.UpdatedAt = time.Unix(updatedAt, 0)

	return &venue, nil
}

// SaveRecords persists a listing and its venue sub-record in one transaction:
// either both writes land or neither does, so a reader can never observe a
// listing without its entity record.
func (c *Client) SaveRecords(ctx context.Context, listing *models.Listing, venue *models.Venue) error {
	fieldsJSON, err := json.Marshal(emptyFields(listing.Fields))
	if err != nil {
		return fmt.Errorf("failed to encode listing fields: %w", err)
	}
	confJSON, err := json.Marshal(emptyConfidence(listing.FieldConfidence))
	if err != nil {
		return fmt.Errorf("failed to encode field confidence: %w", err)
	}
	var sourceJSON []byte
	if listing.SourceInfo != nil {
		sourceJSON, err = json.Marshal(listing.SourceInfo)
		if err != nil {
			return fmt.Errorf("failed to encode source info: %w", err)
		}
	}
	venueFieldsJSON, err := json.Marshal(emptyFields(venue.Fields))
	if err != nil {
		return fmt.Errorf("failed to encode venue fields: %w", err)
	}
	venueConfJSON, err := json.Marshal(emptyConfidence(venue.FieldConfidence))
	if err != nil {
		return fmt.Errorf("failed to encode field confidence: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	listingQuery := `
		INSERT INTO listings (listing_id, entity_name, entity_type, slug, fields, field_confidence, source_info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			fields = excluded.fields,
			field_confidence = excluded.field_confidence,
			source_info = excluded.source_info,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(
		ctx,
		listingQuery,
		listing.ListingID,
		listing.EntityName,
		listing.EntityType,
		listing.Slug,
		string(fieldsJSON),
		string(confJSON),
		nullableString(sourceJSON),
		listing.CreatedAt.Unix(),
		listing.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save listing: %w", err)
	}

	venueQuery := `
		INSERT INTO venues (listing_id, fields, field_confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			fields = excluded.fields,
			field_confidence = excluded.field_confidence,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(
		ctx,
		venueQuery,
		venue.ListingID,
		string(venueFieldsJSON),
		string(venueConfJSON),
		venue.CreatedAt.Unix(),
		venue.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save venue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}

	logger.Debug("Records saved",
		zap.String("listing_id", listing.ListingID),
		zap.String("entity_name", listing.EntityName),
	)

	return nil
}

// CountListings reports how many listings exist per entity type, for the
// health/stats surface.
func (c *Client) CountListings(ctx context.Context, entityType string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE entity_type = ?`, entityType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

func emptyFields(f record.Fields) record.Fields {
	if f == nil {
		return record.Fields{}
	}
	return f
}

func emptyConfidence(c record.Confidence) record.Confidence {
	if c == nil {
		return record.Confidence{}
	}
	return c
}

func nullableString(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
