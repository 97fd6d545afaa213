package migration

import (
	"context"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

// lockKeys derives the two int32 halves of the per-branch advisory lock key
// from an FNV-64a hash of the branch id. Collisions across branches only
// over-serialize; they never under-serialize.
func lockKeys(branchID uuid.UUID) (int32, int32) {
	h := fnv.New64a()
	h.Write([]byte(branchID.String()))
	sum := h.Sum64()
	return int32(uint32(sum >> 32)), int32(uint32(sum))
}

// withBranchLock pins one connection from the pool, polls
// pg_try_advisory_lock until acquired or the bounded wait elapses, runs fn,
// and unlocks on the same connection in a defer. A second concurrent apply
// for the same branch therefore waits, then fails with APPLY_LOCK_TIMEOUT
// rather than proceeding unsynchronized.
func (o *Orchestrator) withBranchLock(ctx context.Context, branchID uuid.UUID, fn func() error) error {
	k1, k2 := lockKeys(branchID)
	return o.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		deadline := time.Now().Add(o.lockWait)
		for {
			var got bool
			if err := conn.Raw("SELECT pg_try_advisory_lock(?, ?)", k1, k2).Scan(&got).Error; err != nil {
				return pgerr.Classify(err)
			}
			if got {
				break
			}
			if time.Now().After(deadline) {
				return apierr.Newf(http.StatusConflict, apierr.CodeApplyLockTimeout,
					"another apply is in progress for branch %s", branchID)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.lockPoll):
			}
		}
		defer func() {
			var unlocked bool
			if err := conn.Raw("SELECT pg_advisory_unlock(?, ?)", k1, k2).Scan(&unlocked).Error; err != nil {
				o.log.Error("advisory unlock failed", "branch_id", branchID, "error", err)
			}
		}()
		return fn()
	})
}
