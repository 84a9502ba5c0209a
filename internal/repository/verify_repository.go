package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerifyRepository is the ephemeral store behind phone verification. Only
// one-way hashes of codes ever reach it; the plaintext stays at the
// notification boundary.
type VerifyRepository interface {
	StoreCodeHash(ctx context.Context, phone, codeHash string, ttl time.Duration) error
	CodeHash(ctx context.Context, phone string) (string, error)
	IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int64, error)
	Clear(ctx context.Context, phone string) error
}

type verifyRepository struct {
	client *redis.Client
}

func NewVerifyRepository(client *redis.Client) VerifyRepository {
	return &verifyRepository{client: client}
}

func codeKey(phone string) string     { return "verification_code:" + phone }
func attemptsKey(phone string) string { return "verification_attempts:" + phone }

// StoreCodeHash overwrites any pending code for the phone and resets the
// attempt counter, so only the most recently issued code verifies.
func (r *verifyRepository) StoreCodeHash(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, codeKey(phone), codeHash, ttl)
	pipe.Del(ctx, attemptsKey(phone))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *verifyRepository) CodeHash(ctx context.Context, phone string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	hash, err := r.client.Get(ctx, codeKey(phone)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return hash, err
}

func (r *verifyRepository) IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(phone))
	pipe.Expire(ctx, attemptsKey(phone), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *verifyRepository) Clear(ctx context.Context, phone string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.client.Del(ctx, codeKey(phone), attemptsKey(phone)).Err()
}
