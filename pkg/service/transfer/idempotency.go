package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/corebank/pkg/cache"
	"github.com/amirasaad/corebank/pkg/domain"
	"golang.org/x/sync/singleflight"
)

// ErrIdempotencyKeyReused is returned when a key is presented again with a
// different request body.
var ErrIdempotencyKeyReused = fmt.Errorf("%w: idempotency key reused with a different request", domain.ErrValidation)

// MaxIdempotencyKeyLength bounds the client supplied key.
const MaxIdempotencyKeyLength = 255

type storedResult struct {
	Fingerprint string  `json:"fingerprint"`
	Result      *Result `json:"result"`
}

// IdempotencyGuard replays the result of a transfer that already committed
// under the same key. Concurrent requests with one key collapse into a single
// execution. Failures are not stored, so a failed request may be retried with
// the same key.
type IdempotencyGuard struct {
	cache    cache.ResultCache
	ttl      time.Duration
	inflight singleflight.Group
	logger   *slog.Logger
}

// NewIdempotencyGuard creates a guard storing results for ttl.
func NewIdempotencyGuard(c cache.ResultCache, ttl time.Duration, logger *slog.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{cache: c, ttl: ttl, logger: logger.With("component", "idempotency")}
}

// Fingerprint identifies the parts of a request that must match on replay.
func Fingerprint(req Request) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s|%s|%s",
		req.SourceUserID, req.DestinationAccount, req.Amount.StringFixed(2), req.Mode, req.Description))
	return hex.EncodeToString(sum[:])
}

// Do runs fn at most once per (owner, key). replayed is true when the result
// came from an earlier execution.
func (g *IdempotencyGuard) Do(
	ctx context.Context,
	key string,
	req Request,
	fn func(ctx context.Context, req Request) (*Result, error),
) (res *Result, replayed bool, err error) {
	if key == "" {
		res, err = fn(ctx, req)
		return res, false, err
	}
	if len(key) > MaxIdempotencyKeyLength {
		return nil, false, fmt.Errorf("%w: idempotency key too long", domain.ErrValidation)
	}
	fp := Fingerprint(req)
	cacheKey := "transfer:" + req.SourceUserID.String() + ":" + key
	log := g.logger.With("idempotency_key", key, "owner_id", req.SourceUserID)

	type outcome struct {
		res         *Result
		fingerprint string
		replayed    bool
	}
	leader := false
	v, err, _ := g.inflight.Do(cacheKey, func() (any, error) {
		leader = true
		stored, err := g.lookup(ctx, cacheKey)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			if stored.Fingerprint != fp {
				return nil, ErrIdempotencyKeyReused
			}
			return outcome{res: stored.Result, fingerprint: fp, replayed: true}, nil
		}

		res, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(storedResult{Fingerprint: fp, Result: res})
		if err != nil {
			return nil, err
		}
		if err := g.cache.Set(ctx, cacheKey, raw, g.ttl); err != nil {
			// The transfer committed; losing the replay record only
			// weakens later retries.
			log.Error("failed to store idempotent result", "error", err)
		}
		return outcome{res: res, fingerprint: fp}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(outcome)
	if !leader {
		// Waiters share the leader's execution, which ran with the leader's body.
		if out.fingerprint != fp {
			return nil, false, ErrIdempotencyKeyReused
		}
		out.replayed = true
	}
	if out.replayed {
		log.Info("🔁 [SKIP] replaying transfer result")
	}
	return out.res, out.replayed, nil
}

func (g *IdempotencyGuard) lookup(ctx context.Context, key string) (*storedResult, error) {
	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read idempotency record: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedResult
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, errors.Join(errors.New("corrupt idempotency record"), err)
	}
	return &stored, nil
}
