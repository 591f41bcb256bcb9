package redis

import (
	"context"
	"time"
)

// Deduper guards against redelivered gateway webhooks. The gateway retries
// delivery on transport errors, so the same message id can arrive more than
// once; only the first claim within the TTL wins.
type Deduper struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

// NewDeduper creates a dedupe guard
func NewDeduper(client *Client, keyPrefix string, ttl time.Duration) *Deduper {
	if keyPrefix == "" {
		keyPrefix = "dedupe:"
	}
	return &Deduper{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Claim marks an id as seen. Returns true when this caller is the first to
// claim it within the TTL. On Redis failure the claim is allowed through:
// a duplicate relay beats a dropped message.
func (d *Deduper) Claim(ctx context.Context, id string) bool {
	if id == "" {
		return true
	}

	ok, err := d.client.SetNX(ctx, d.keyPrefix+id, 1, d.ttl)
	if err != nil {
		d.client.logger.WithContext(ctx).WithError(err).Warn("dedupe check failed, allowing message through")
		return true
	}

	return ok
}

// Release frees a claimed id so a later redelivery is processed. Used when a
// claimed event could not be handed off; without it the gateway's retry
// would be answered as a duplicate and the message lost.
func (d *Deduper) Release(ctx context.Context, id string) {
	if id == "" {
		return
	}

	if err := d.client.Del(ctx, d.keyPrefix+id); err != nil {
		d.client.logger.WithContext(ctx).WithError(err).Warn("failed to release dedupe claim")
	}
}
