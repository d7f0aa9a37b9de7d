// Package redis caches fully merged listings so the read API does not hit
// SQLite for every lookup. The cache is strictly derivative: an upsert
// invalidates, it never writes through.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetListing(ctx context.Context, listing *models.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	err = c.client.Set(ctx, listingKey(listing.ListingID), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set listing cache: %w", err)
	}

	// secondary index so identity lookups can resolve without SQLite
	err = c.client.Set(ctx, identityKey(listing.EntityName, listing.EntityType), listing.ListingID, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set identity index: %w", err)
	}

	logger.Debug("Listing cached", zap.String("listing_id", listing.ListingID))
	return nil
}

func (c *Client) GetListing(ctx context.Context, listingID string) (*models.Listing, bool, error) {
	data, err := c.client.Get(ctx, listingKey(listingID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get listing cache: %w", err)
	}

	var listing models.Listing
	err = json.Unmarshal(data, &listing)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal listing: %w", err)
	}

	logger.Debug("Listing cache hit", zap.String("listing_id", listingID))
	return &listing, true, nil
}

// ResolveIdentity returns the cached listing ID for an identity pair, or ""
// on a miss.
func (c *Client) ResolveIdentity(ctx context.Context, entityName, entityType string) (string, error) {
	listingID, err := c.client.Get(ctx, identityKey(entityName, entityType)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity: %w", err)
	}
	return listingID, nil
}

// InvalidateListing drops a listing from the cache after its stored record
// changed.
func (c *Client) InvalidateListing(ctx context.Context, listingID string) error {
	err := c.client.Del(ctx, listingKey(listingID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate listing: %w", err)
	}

	logger.Debug("Listing cache invalidated", zap.String("listing_id", listingID))
	return nil
}

func listingKey(listingID string) string {
	return fmt.Sprintf("listing:%s", listingID)
}

func identityKey(entityName, entityType string) string {
	return fmt.Sprintf("identity:%s:%s", entityType, entityName)
}
