package store

import (
	"context"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/config"
	"github.com/voicekit/support-bot/internal/domain"
)

// RedisProvider is a Provider backed by Redis hashes, for deployments that
// already run Redis and want the bot state off the local disk.
type RedisProvider struct {
	client *redis.Client
	roles  *domain.RoleSet
	logger *zap.Logger
	ns     string
}

// NewRedisProvider connects to Redis using the provided configuration.
func NewRedisProvider(cfg config.RedisConfig, roles *domain.RoleSet, logger *zap.Logger) *RedisProvider {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisProvider{client: client, roles: roles, logger: logger}
}

// Setup verifies connectivity and the persisted schema version.
func (p *RedisProvider) Setup(ctx context.Context, namespace string) error {
	p.ns = namespace
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	set, err := p.client.SetNX(ctx, p.key("schema_version"), SchemaVersion, 0).Result()
	if err != nil {
		return err
	}
	if set {
		return nil
	}
	stored, err := p.client.Get(ctx, p.key("schema_version")).Int()
	if err != nil {
		return err
	}
	if stored != SchemaVersion {
		return fmt.Errorf("%w: persisted %d, want %d", ErrSchemaMismatch, stored, SchemaVersion)
	}
	return nil
}

// Version reports the schema version this provider implements.
func (p *RedisProvider) Version() int {
	return SchemaVersion
}

// IsBlacklisted reports whether uid has a blacklist entry.
func (p *RedisProvider) IsBlacklisted(ctx context.Context, uid string) (bool, error) {
	return p.client.HExists(ctx, p.key("blacklist"), uid).Result()
}

// GetBlacklistEntry fetches the blacklist entry for uid.
func (p *RedisProvider) GetBlacklistEntry(ctx context.Context, uid string) (*domain.BlacklistEntry, error) {
	raw, err := p.client.HGet(ctx, p.key("blacklist"), uid).Result()
	if err == redis.Nil {
		return nil, ErrBlacklistNotFound
	}
	if err != nil {
		return nil, err
	}
	var entry domain.BlacklistEntry
	if err := jsoniter.UnmarshalFromString(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// AddBlacklist stores a blacklist entry keyed by uid.
func (p *RedisProvider) AddBlacklist(ctx context.Context, entry domain.BlacklistEntry) error {
	raw, err := jsoniter.MarshalToString(&entry)
	if err != nil {
		return err
	}
	return p.client.HSet(ctx, p.key("blacklist"), entry.UID, raw).Err()
}

// RemoveBlacklist deletes the entry for uid.
func (p *RedisProvider) RemoveBlacklist(ctx context.Context, uid string) error {
	return p.client.HDel(ctx, p.key("blacklist"), uid).Err()
}

// BlacklistEntries lists every stored blacklist entry.
func (p *RedisProvider) BlacklistEntries(ctx context.Context) ([]domain.BlacklistEntry, error) {
	values, err := p.client.HVals(ctx, p.key("blacklist")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.BlacklistEntry, 0, len(values))
	for _, raw := range values {
		var entry domain.BlacklistEntry
		if err := jsoniter.UnmarshalFromString(raw, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// AddTicket inserts the ticket and assigns its ID from a counter key.
func (p *RedisProvider) AddTicket(ctx context.Context, t *domain.Ticket) (uint64, error) {
	id, err := p.client.Incr(ctx, p.key("ticket_seq")).Result()
	if err != nil {
		return 0, err
	}
	t.ID = uint64(id)
	raw, err := jsoniter.MarshalToString(t.Record())
	if err != nil {
		return 0, err
	}
	if err := p.client.HSet(ctx, p.key("tickets"), uintString(t.ID), raw).Err(); err != nil {
		return 0, err
	}
	return t.ID, nil
}

// UpdateTicket rewrites an existing ticket. Returns ErrTicketNotFound when
// the ID is unknown so the caller can insert instead.
func (p *RedisProvider) UpdateTicket(ctx context.Context, t *domain.Ticket) (uint64, error) {
	exists, err := p.client.HExists(ctx, p.key("tickets"), uintString(t.ID)).Result()
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrTicketNotFound
	}
	raw, err := jsoniter.MarshalToString(t.Record())
	if err != nil {
		return 0, err
	}
	if err := p.client.HSet(ctx, p.key("tickets"), uintString(t.ID), raw).Err(); err != nil {
		return 0, err
	}
	return t.ID, nil
}

// TicketsBy scans stored tickets and returns those matching field=value.
func (p *RedisProvider) TicketsBy(ctx context.Context, field TicketField, value string) ([]*domain.Ticket, error) {
	values, err := p.client.HVals(ctx, p.key("tickets")).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Ticket
	for _, raw := range values {
		var rec domain.TicketRecord
		if err := jsoniter.UnmarshalFromString(raw, &rec); err != nil {
			return nil, err
		}
		if matchesField(rec, field, value) {
			out = append(out, domain.TicketFromRecord(rec, p.roles))
		}
	}
	return out, nil
}

// RemoveTicket deletes the ticket with the given ID.
func (p *RedisProvider) RemoveTicket(ctx context.Context, id uint64) error {
	return p.client.HDel(ctx, p.key("tickets"), strconv.FormatUint(id, 10)).Err()
}

// Reset drops tickets, blacklist and the ID counter.
func (p *RedisProvider) Reset(ctx context.Context) error {
	p.logger.Warn("resetting store", zap.String("namespace", p.ns))
	return p.client.Del(ctx, p.key("tickets"), p.key("blacklist"), p.key("ticket_seq")).Err()
}

// Close closes the client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) key(name string) string {
	return p.ns + ":" + name
}
