package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"strconv"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/domain"
)

const (
	bucketTickets   = "tickets"
	bucketBlacklist = "blacklist"
	bucketMeta      = "meta"

	metaKeyVersion = "schema_version"
)

// BoltProvider is the default Provider backed by an embedded bolt database.
type BoltProvider struct {
	db     *bolt.DB
	roles  *domain.RoleSet
	logger *zap.Logger
	ns     string
}

// NewBoltProvider opens (or creates) the bolt database file in dir.
func NewBoltProvider(dir string, roles *domain.RoleSet, logger *zap.Logger) (*BoltProvider, error) {
	db, err := bolt.Open(path.Join(dir, "support.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	return &BoltProvider{db: db, roles: roles, logger: logger}, nil
}

// Setup creates the namespaced buckets and verifies the persisted schema version.
func (p *BoltProvider) Setup(ctx context.Context, namespace string) error {
	p.ns = namespace
	return p.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketTickets, bucketBlacklist, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(p.bucketKey(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(p.bucketKey(bucketMeta))
		stored := meta.Get([]byte(metaKeyVersion))
		if stored == nil {
			return meta.Put([]byte(metaKeyVersion), []byte(strconv.Itoa(SchemaVersion)))
		}
		version, err := strconv.Atoi(string(stored))
		if err != nil || version != SchemaVersion {
			return fmt.Errorf("%w: persisted %s, want %d", ErrSchemaMismatch, stored, SchemaVersion)
		}
		return nil
	})
}

// Version reports the schema version this provider implements.
func (p *BoltProvider) Version() int {
	return SchemaVersion
}

// IsBlacklisted reports whether uid has a blacklist entry.
func (p *BoltProvider) IsBlacklisted(ctx context.Context, uid string) (bool, error) {
	entry, err := p.GetBlacklistEntry(ctx, uid)
	if err == ErrBlacklistNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// GetBlacklistEntry fetches the blacklist entry for uid.
func (p *BoltProvider) GetBlacklistEntry(ctx context.Context, uid string) (*domain.BlacklistEntry, error) {
	var entry domain.BlacklistEntry
	err := p.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(p.bucketKey(bucketBlacklist)).Get([]byte(uid))
		if raw == nil {
			return ErrBlacklistNotFound
		}
		return jsoniter.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// AddBlacklist stores a blacklist entry keyed by uid.
func (p *BoltProvider) AddBlacklist(ctx context.Context, entry domain.BlacklistEntry) error {
	raw, err := jsoniter.Marshal(&entry)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucketKey(bucketBlacklist)).Put([]byte(entry.UID), raw)
	})
}

// RemoveBlacklist deletes the entry for uid.
func (p *BoltProvider) RemoveBlacklist(ctx context.Context, uid string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucketKey(bucketBlacklist)).Delete([]byte(uid))
	})
}

// BlacklistEntries lists every stored blacklist entry.
func (p *BoltProvider) BlacklistEntries(ctx context.Context) ([]domain.BlacklistEntry, error) {
	var out []domain.BlacklistEntry
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucketKey(bucketBlacklist)).ForEach(func(_, raw []byte) error {
			var entry domain.BlacklistEntry
			if err := jsoniter.Unmarshal(raw, &entry); err != nil {
				return err
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddTicket inserts the ticket and assigns its ID from the bucket sequence.
func (p *BoltProvider) AddTicket(ctx context.Context, t *domain.Ticket) (uint64, error) {
	err := p.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(p.bucketKey(bucketTickets))
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		t.ID = id
		raw, err := jsoniter.Marshal(t.Record())
		if err != nil {
			return err
		}
		return bkt.Put(itob(id), raw)
	})
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// UpdateTicket rewrites an existing ticket. Returns ErrTicketNotFound when
// the ID is unknown so the caller can insert instead.
func (p *BoltProvider) UpdateTicket(ctx context.Context, t *domain.Ticket) (uint64, error) {
	err := p.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(p.bucketKey(bucketTickets))
		if bkt.Get(itob(t.ID)) == nil {
			return ErrTicketNotFound
		}
		raw, err := jsoniter.Marshal(t.Record())
		if err != nil {
			return err
		}
		return bkt.Put(itob(t.ID), raw)
	})
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// TicketsBy scans stored tickets and returns those matching field=value.
func (p *BoltProvider) TicketsBy(ctx context.Context, field TicketField, value string) ([]*domain.Ticket, error) {
	var out []*domain.Ticket
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucketKey(bucketTickets)).ForEach(func(_, raw []byte) error {
			var rec domain.TicketRecord
			if err := jsoniter.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if matchesField(rec, field, value) {
				out = append(out, domain.TicketFromRecord(rec, p.roles))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveTicket deletes the ticket with the given ID.
func (p *BoltProvider) RemoveTicket(ctx context.Context, id uint64) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucketKey(bucketTickets)).Delete(itob(id))
	})
}

// Reset drops and recreates the namespaced buckets.
func (p *BoltProvider) Reset(ctx context.Context) error {
	p.logger.Warn("resetting store", zap.String("namespace", p.ns))
	return p.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketTickets, bucketBlacklist} {
			if err := tx.DeleteBucket(p.bucketKey(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(p.bucketKey(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the database file.
func (p *BoltProvider) Close() error {
	return p.db.Close()
}

func (p *BoltProvider) bucketKey(name string) []byte {
	return []byte(p.ns + ":" + name)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
