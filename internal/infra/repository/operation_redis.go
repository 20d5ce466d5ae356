package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

const (
	operationKeyPrefix      = "operation:record:"
	operationIndexKey       = "operation:index"
	operationStatusIndexKey = "operation:index:status:"

	defaultOperationTTL = 7 * 24 * time.Hour // 7 days
	listBatchSize       = 200
)

type redisOperationRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisOperationRepository stores operations as JSON records with a TTL.
// A creation-ordered sorted set indexes every record and one sorted set per
// status indexes records by their current status.
func NewRedisOperationRepository(client redis.UniversalClient, ttl time.Duration) domain.OperationRepository {
	if ttl <= 0 {
		ttl = defaultOperationTTL
	}
	return &redisOperationRepository{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func statusIndexKey(status domain.Status) string {
	return operationStatusIndexKey + status.String()
}

// index moves op to the index of its current status.
func index(ctx context.Context, pipe redis.Pipeliner, op *domain.Operation) {
	member := redis.Z{
		Score:  float64(op.CreatedAt.UnixNano()),
		Member: op.ID,
	}
	pipe.ZAddNX(ctx, operationIndexKey, member)
	for _, status := range domain.AllStatuses() {
		if status != op.Status {
			pipe.ZRem(ctx, statusIndexKey(status), op.ID)
		}
	}
	pipe.ZAddNX(ctx, statusIndexKey(op.Status), member)
}

func (r *redisOperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	data, err := encodeOperation(op, r.now())
	if err != nil {
		return err
	}

	key := operationKeyPrefix + op.ID

	created, err := r.client.SetNX(ctx, key, data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return domain.ErrOperationExists
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		index(ctx, pipe, op)
		return nil
	})
	return err
}

func (r *redisOperationRepository) Save(ctx context.Context, op *domain.Operation) error {
	data, err := encodeOperation(op, r.now())
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, operationKeyPrefix+op.ID, data, r.ttl)
	index(ctx, pipe, op)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisOperationRepository) Get(ctx context.Context, id string) (*domain.Operation, error) {
	data, err := r.client.Get(ctx, operationKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, err
	}

	return decodeOperation(data)
}

// List reads the status index when a status is given and the creation index
// otherwise, newest first. Without a type filter only the requested page is
// fetched; a type filter walks the index in batches. Index members whose
// record has expired are removed as they are encountered.
func (r *redisOperationRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Operation, int, error) {
	indexKey := operationIndexKey
	if filter.Status != "" {
		indexKey = statusIndexKey(filter.Status)
	}

	if filter.Type == "" {
		return r.listPage(ctx, indexKey, filter)
	}
	return r.listScan(ctx, indexKey, filter)
}

func (r *redisOperationRepository) listPage(ctx context.Context, indexKey string, filter domain.ListFilter) ([]*domain.Operation, int, error) {
	total, err := r.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, 0, err
	}

	offset := int64(max(filter.Offset, 0))
	if offset >= total {
		return []*domain.Operation{}, int(total), nil
	}
	stop := int64(-1)
	if filter.Limit > 0 {
		stop = offset + int64(filter.Limit) - 1
	}

	ids, err := r.client.ZRevRange(ctx, indexKey, offset, stop).Result()
	if err != nil {
		return nil, 0, err
	}

	ops, expired, err := r.fetch(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	if err := r.prune(ctx, expired); err != nil {
		return nil, 0, err
	}

	matched := make([]*domain.Operation, 0, len(ops))
	for _, op := range ops {
		if matchesFilter(op, filter) {
			matched = append(matched, op)
		}
	}
	return matched, int(total) - len(expired), nil
}

func (r *redisOperationRepository) listScan(ctx context.Context, indexKey string, filter domain.ListFilter) ([]*domain.Operation, int, error) {
	matched := make([]*domain.Operation, 0)
	var expired []string

	for start := int64(0); ; start += listBatchSize {
		ids, err := r.client.ZRevRange(ctx, indexKey, start, start+listBatchSize-1).Result()
		if err != nil {
			return nil, 0, err
		}
		if len(ids) == 0 {
			break
		}

		ops, gone, err := r.fetch(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		expired = append(expired, gone...)
		for _, op := range ops {
			if matchesFilter(op, filter) {
				matched = append(matched, op)
			}
		}

		if len(ids) < listBatchSize {
			break
		}
	}

	if err := r.prune(ctx, expired); err != nil {
		return nil, 0, err
	}

	return page(matched, filter), len(matched), nil
}

// fetch loads ids in index order and reports the ids whose record is gone.
func (r *redisOperationRepository) fetch(ctx context.Context, ids []string) ([]*domain.Operation, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = operationKeyPrefix + id
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	ops := make([]*domain.Operation, 0, len(values))
	var expired []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		op, err := decodeOperation([]byte(raw))
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
	}
	return ops, expired, nil
}

func (r *redisOperationRepository) prune(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, operationIndexKey, members...)
		for _, status := range domain.AllStatuses() {
			pipe.ZRem(ctx, statusIndexKey(status), members...)
		}
		return nil
	})
	return err
}
