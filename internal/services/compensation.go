package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/thomasmilici/domux-backend/internal/platform/gcp"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
)

const (
	compActionBlobDelete   = "blob_delete"
	compActionSessionPause = "session_pause"
)

type compensation struct {
	kind      string
	key       string
	sessionID string
	note      string
}

// compensationLog records the undo action for each side effect a finalization
// run performs, and replays them in reverse when the run fails. Every
// compensation is best-effort: failures are recorded and logged, never raised,
// so they cannot mask the primary error.
type compensationLog struct {
	log      *logger.Logger
	bucket   gcp.BucketService
	sessions repos.SessionRepo

	entries  []compensation
	failures []string
}

func newCompensationLog(log *logger.Logger, bucket gcp.BucketService, sessions repos.SessionRepo) *compensationLog {
	return &compensationLog{
		log:      log.With("service", "CompensationLog"),
		bucket:   bucket,
		sessions: sessions,
	}
}

func (cl *compensationLog) AddBlobDelete(key string) {
	cl.entries = append(cl.entries, compensation{kind: compActionBlobDelete, key: key})
}

func (cl *compensationLog) AddSessionPause(sessionID, note string) {
	cl.entries = append(cl.entries, compensation{kind: compActionSessionPause, sessionID: sessionID, note: note})
}

// ClearBlobDeletes drops every pending blob delete. Called once the project
// record referencing the blobs has been written: from that point on the
// uploads are owned by the record and must survive.
func (cl *compensationLog) ClearBlobDeletes() {
	kept := cl.entries[:0]
	for _, e := range cl.entries {
		if e.kind != compActionBlobDelete {
			kept = append(kept, e)
		}
	}
	cl.entries = kept
}

// Run executes the recorded compensations newest-first.
func (cl *compensationLog) Run(ctx context.Context) {
	for i := len(cl.entries) - 1; i >= 0; i-- {
		e := cl.entries[i]
		if err := cl.execute(ctx, e); err != nil {
			cl.failures = append(cl.failures, fmt.Sprintf("%s: %v", e.kind, err))
			cl.log.Warn("compensation failed (recorded, not raised)",
				"kind", e.kind,
				"key", e.key,
				"session_id", e.sessionID,
				"error", err.Error(),
			)
		}
	}
	cl.entries = nil
}

func (cl *compensationLog) Failures() []string {
	return append([]string(nil), cl.failures...)
}

func (cl *compensationLog) execute(ctx context.Context, e compensation) error {
	switch e.kind {
	case compActionBlobDelete:
		key := strings.TrimSpace(e.key)
		if key == "" {
			return nil
		}
		err := cl.bucket.Delete(ctx, key)
		if isNotFoundErr(err) {
			return nil
		}
		return err

	case compActionSessionPause:
		if e.sessionID == "" {
			return nil
		}
		return cl.sessions.Pause(ctx, e.sessionID, e.note)

	default:
		return fmt.Errorf("unknown compensation kind: %s", e.kind)
	}
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not found") || strings.Contains(s, "doesn't exist") || strings.Contains(s, "does not exist")
}
