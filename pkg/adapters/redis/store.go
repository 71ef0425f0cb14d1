package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "chameleon:"

// Store implements ports.UOWStore on Redis.
//
// Layout, relative to the prefix:
//
//	uow:<id>          JSON record
//	status:<STATUS>   sorted set of ids, scored by location_since
//	children:<id>     set of child ids
//	history:<id>      list of JSON history entries
//	audit:<id>        list of JSON audit entries
//
// Writes use WATCH/MULTI so the record, its indexes and its history entry
// change together, and a concurrent writer aborts the transaction.
type Store struct {
	client backend.UniversalClient
	prefix string
}

var _ ports.UOWStore = (*Store)(nil)

// Option configures the Redis store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to addr and returns a store.
func New(addr string, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client, for sharing with a Locker.
func (s *Store) Client() backend.UniversalClient {
	return s.client
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) uowKey(id string) string { return s.prefix + "uow:" + id }
func (s *Store) statusKey(st domain.Status) string { return s.prefix + "status:" + string(st.Canonical()) }
func (s *Store) childrenKey(parentID string) string { return s.prefix + "children:" + parentID }
func (s *Store) historyKey(id string) string { return s.prefix + "history:" + id }
func (s *Store) auditKey(id string) string { return s.prefix + "audit:" + id }

func (s *Store) Create(ctx context.Context, uow *domain.UOW, entry *domain.HistoryEntry) error {
	data, err := json.Marshal(uow)
	if err != nil {
		return fmt.Errorf("encode uow: %w", err)
	}
	entryData, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	key := s.uowKey(uow.ID)
	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.statusKey(uow.Status), score(uow))
			if p := uow.Parent(); p != "" {
				pipe.SAdd(ctx, s.childrenKey(p), uow.ID)
			}
			if entryData != nil {
				pipe.RPush(ctx, s.historyKey(uow.ID), entryData)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.UOW, error) {
	raw, err := s.client.Get(ctx, s.uowKey(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrUOWNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeUOW(raw)
}

func (s *Store) Update(ctx context.Context, uow *domain.UOW, expectedVersion int64, entry *domain.HistoryEntry) error {
	data, err := json.Marshal(uow)
	if err != nil {
		return fmt.Errorf("encode uow: %w", err)
	}
	entryData, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	key := s.uowKey(uow.ID)
	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, backend.Nil) {
			return domain.ErrUOWNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeUOW(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Status.Canonical() != uow.Status.Canonical() {
				pipe.ZRem(ctx, s.statusKey(current.Status), uow.ID)
			}
			pipe.ZAdd(ctx, s.statusKey(uow.Status), score(uow))
			if entryData != nil {
				pipe.RPush(ctx, s.historyKey(uow.ID), entryData)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return err
}

func (s *Store) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	raws, err := s.client.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return s.client.RPush(ctx, s.auditKey(entry.UOWID), data).Err()
}

func (s *Store) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	raws, err := s.client.LRange(ctx, s.auditKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.AuditEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*domain.UOW, error) {
	ids, err := s.client.SMembers(ctx, s.childrenKey(parentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return s.load(ctx, ids, func(*domain.UOW) bool { return true })
}

func (s *Store) ListByStatus(ctx context.Context, status domain.Status, location string) ([]*domain.UOW, error) {
	ids, err := s.client.ZRange(ctx, s.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	want := status.Canonical()
	return s.load(ctx, ids, func(u *domain.UOW) bool {
		// The index can briefly lag a record read between transactions.
		return u.Status.Canonical() == want && (location == "" || u.Location == location)
	})
}

func (s *Store) load(ctx context.Context, ids []string, keep func(*domain.UOW) bool) ([]*domain.UOW, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.uowKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	var out []*domain.UOW
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		u, err := decodeUOW([]byte(raw))
		if err != nil {
			return nil, err
		}
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationSince.Equal(out[j].LocationSince) {
			return out[i].ID < out[j].ID
		}
		return out[i].LocationSince.Before(out[j].LocationSince)
	})
	return out, nil
}

func score(u *domain.UOW) backend.Z {
	return backend.Z{Score: float64(u.LocationSince.UnixMilli()), Member: u.ID}
}

func encodeEntry(entry *domain.HistoryEntry) ([]byte, error) {
	if entry == nil {
		return nil, nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode history entry: %w", err)
	}
	return data, nil
}

func decodeUOW(raw []byte) (*domain.UOW, error) {
	var u domain.UOW
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode uow: %w", err)
	}
	return &u, nil
}
