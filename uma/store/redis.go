package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nonceKeyPrefix   = "uma:nonce:"
	requestKeyPrefix = "uma:payreq:"
)

// createScript reserves the nonce without expiry and writes the request with one. KEYS: nonce, request. ARGV:
// created-at unix seconds, request JSON, TTL in milliseconds.
var createScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisPaymentRequestStore keeps payment requests in Redis under their nonce. The request expires with its TTL; the
// nonce reservation never does.
type RedisPaymentRequestStore struct {
	client *redis.Client
	// minTTL is the shortest expiry a request is written with.
	minTTL time.Duration
}

func NewRedisPaymentRequestStore(addr, password string, db int) (*RedisPaymentRequestStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisPaymentRequestStore{client: client, minTTL: time.Minute}, nil
}

// Create reserves the nonce and writes the request in one script, so the nonce check and the insert are atomic.
func (s *RedisPaymentRequestStore) Create(ctx context.Context, request *PaymentRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}
	ttl := request.ExpiresAt.Sub(request.CreatedAt)
	if ttl < s.minTTL {
		ttl = s.minTTL
	}
	keys := []string{nonceKey(request.Nonce), requestKey(request.Nonce)}
	created, err := createScript.Run(ctx, s.client, keys, request.CreatedAt.Unix(), data, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to store payment request in redis: %w", err)
	}
	if created == 0 {
		return ErrDuplicateNonce
	}
	return nil
}

func (s *RedisPaymentRequestStore) Get(ctx context.Context, nonce string) (*PaymentRequest, error) {
	data, err := s.client.Get(ctx, requestKey(nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request from redis: %w", err)
	}
	var request PaymentRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment request: %w", err)
	}
	return &request, nil
}

func (s *RedisPaymentRequestStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisPaymentRequestStore) Close() error {
	return s.client.Close()
}

func nonceKey(nonce string) string {
	return nonceKeyPrefix + nonce
}

func requestKey(nonce string) string {
	return requestKeyPrefix + nonce
}
