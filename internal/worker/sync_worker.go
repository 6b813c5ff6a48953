package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tempo/internal/amqp"
	"tempo/internal/export"
	applog "tempo/internal/log"
	"tempo/internal/storage"
)

// SyncWorker exports logged sessions from the flat session file to the Google
// Sheets timesheet. The session file has no per-row sync flags, so progress is
// tracked as a count cursor: everything before the cursor has been exported.
type SyncWorker struct {
	store     *storage.FileStore
	sheets    export.SessionWriter
	batchSize int
}

func NewSyncWorker(store *storage.FileStore, sheets export.SessionWriter, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		sheets:    sheets,
		batchSize: batchSize,
	}
}

// HandleSessionMessage processes a session-logged event from AMQP. The
// message is a nudge rather than the unit of work: the worker drains from the
// cursor so a session is exported exactly once even when the event races the
// periodic catch-up.
func (w *SyncWorker) HandleSessionMessage(ctx context.Context, msg *amqp.SessionLoggedMessage) error {
	slog.InfoContext(ctx, "Processing session logged message",
		applog.FieldProject, msg.Project,
		applog.FieldHours, msg.Hours)
	return w.ProcessPendingSessions(ctx)
}

// ProcessPendingSessions exports up to batchSize sessions past the cursor.
// This is also the backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingSessions(ctx context.Context) error {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck drains a larger batch at worker startup to recover from
// missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	cursor, err := w.store.ExportCursor(ctx)
	if err != nil {
		return fmt.Errorf("read export cursor: %w", err)
	}
	sessions, err := w.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions for startup check: %w", err)
	}
	if cursor >= len(sessions) {
		slog.InfoContext(ctx, "No pending sessions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending sessions on startup, processing...",
		"count", len(sessions)-cursor)
	return w.processPending(ctx, w.batchSize*5)
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) error {
	cursor, err := w.store.ExportCursor(ctx)
	if err != nil {
		return fmt.Errorf("read export cursor: %w", err)
	}
	sessions, err := w.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	if cursor >= len(sessions) {
		return nil
	}

	pending := sessions[cursor:]
	if len(pending) > limit {
		pending = pending[:limit]
	}

	synced := 0
	for _, s := range pending {
		ref, err := w.sheets.AppendSession(ctx, s)
		if err != nil {
			// Stop at the first failure so the cursor never skips a
			// session; the next run retries from here.
			slog.ErrorContext(ctx, "Failed to export session",
				"index", cursor+synced,
				applog.FieldProject, s.DisplayProject(),
				applog.FieldError, err)
			break
		}
		synced++
		slog.InfoContext(ctx, "Exported session to timesheet",
			"index", cursor+synced-1,
			applog.FieldSheetsRef, ref,
			applog.FieldProject, s.DisplayProject(),
			applog.FieldHours, s.Hours)
	}

	if synced > 0 {
		if err := w.store.SetExportCursor(ctx, cursor+synced); err != nil {
			return fmt.Errorf("advance export cursor: %w", err)
		}
	}

	slog.InfoContext(ctx, "Sync pass completed",
		"pending", len(sessions)-cursor,
		"synced", synced)
	return nil
}
