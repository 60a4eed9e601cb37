package notifications

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/database"
	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewManager(db.DB, NewDebounceCache())
}

func countRows(t *testing.T, m *Manager) int {
	t.Helper()
	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&count); err != nil {
		t.Fatalf("failed to count notifications: %v", err)
	}
	return count
}

func interval(d time.Duration) *time.Duration {
	return &d
}

func TestNotifyInsertsAndIncrementsCounter(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Notify(ctx, nil, LevelInfo, "update-available", "A new version is available", nil, nil); err != nil {
			t.Fatalf("notify %d failed: %v", i, err)
		}
	}

	if got := countRows(t, m); got != 3 {
		t.Fatalf("expected 3 rows, got %d", got)
	}
	unread, err := m.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("failed to read unread count: %v", err)
	}
	if unread != 3 {
		t.Fatalf("expected unread count 3, got %d", unread)
	}
}

func TestDebounceSuppressesWithinWindow(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	// Two warnings for the same key within the same second.
	for i := 0; i < 2; i++ {
		if err := m.Notify(ctx, nil, LevelWarning, "disk-low", "Backup volume almost full", nil, interval(time.Hour)); err != nil {
			t.Fatalf("notify %d failed: %v", i, err)
		}
	}

	if got := countRows(t, m); got != 1 {
		t.Fatalf("expected exactly one row, got %d", got)
	}
	unread, err := m.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("failed to read unread count: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected unread count to increment exactly once, got %d", unread)
	}
}

func TestDebounceAdmitsAfterInterval(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	now := time.Now()
	m.cache.now = func() time.Time { return now }

	if err := m.Notify(ctx, nil, LevelWarning, "disk-low", "first", nil, interval(time.Hour)); err != nil {
		t.Fatalf("first notify failed: %v", err)
	}
	now = now.Add(time.Hour)
	if err := m.Notify(ctx, nil, LevelWarning, "disk-low", "second", nil, interval(time.Hour)); err != nil {
		t.Fatalf("second notify failed: %v", err)
	}

	if got := countRows(t, m); got != 2 {
		t.Fatalf("expected two rows after interval elapsed, got %d", got)
	}
}

func TestNilDebounceAlwaysInserts(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.Notify(ctx, nil, LevelError, "backup-failed", "boom", nil, nil); err != nil {
			t.Fatalf("notify %d failed: %v", i, err)
		}
	}
	if got := countRows(t, m); got != 2 {
		t.Fatalf("expected two rows with nil debounce, got %d", got)
	}
}

func TestDebounceKeyIncludesPackageAndLevel(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	pkg := models.PackageID("acme-crm")

	if err := m.Notify(ctx, nil, LevelWarning, "disk-low", "server-wide", nil, interval(time.Hour)); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	// Same title, different package: a different debounce key.
	if err := m.Notify(ctx, &pkg, LevelWarning, "disk-low", "package-scoped", nil, interval(time.Hour)); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	// Same title and package, different level: also distinct.
	if err := m.Notify(ctx, &pkg, LevelError, "disk-low", "escalated", nil, interval(time.Hour)); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if got := countRows(t, m); got != 3 {
		t.Fatalf("expected three rows for three distinct keys, got %d", got)
	}
}

func TestListReturnsDescendingAndResetsCounter(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := m.Notify(ctx, nil, LevelInfo, "t", "m", nil, nil); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	list, err := m.List(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].ID >= list[i-1].ID {
			t.Fatalf("ids not strictly descending: %d then %d", list[i-1].ID, list[i].ID)
		}
	}

	unread, err := m.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("failed to read unread count: %v", err)
	}
	if unread != 0 {
		t.Fatalf("list without cursor must reset unread count, got %d", unread)
	}
}

func TestListWithCursorDoesNotResetCounter(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := m.Notify(ctx, nil, LevelInfo, "t", "m", nil, nil); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	all, err := m.List(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	cursor := all[0].ID // highest id

	page, err := m.List(ctx, &cursor, 2)
	if err != nil {
		t.Fatalf("cursor list failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 notifications under cursor, got %d", len(page))
	}
	for _, n := range page {
		if n.ID >= cursor {
			t.Fatalf("cursor not honored: id %d >= %d", n.ID, cursor)
		}
	}

	// The earlier full list already reset the counter; add one more and
	// confirm a cursor list leaves it alone.
	if err := m.Notify(ctx, nil, LevelInfo, "t2", "m2", nil, nil); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if _, err := m.List(ctx, &cursor, 0); err != nil {
		t.Fatalf("cursor list failed: %v", err)
	}
	unread, err := m.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("failed to read unread count: %v", err)
	}
	if unread != 1 {
		t.Fatalf("cursor list must not reset unread count, got %d", unread)
	}
}

func TestDeleteDoesNotTouchCounter(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Notify(ctx, nil, LevelInfo, "t", "m", nil, nil); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	if err := m.Delete(ctx, 1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := m.DeleteBefore(ctx, 3); err != nil {
		t.Fatalf("delete-before failed: %v", err)
	}

	if got := countRows(t, m); got != 1 {
		t.Fatalf("expected 1 remaining row, got %d", got)
	}
	unread, err := m.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("failed to read unread count: %v", err)
	}
	if unread != 3 {
		t.Fatalf("delete must not touch the unread counter, got %d", unread)
	}
}

func TestPayloadCodeAndData(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	errMsg := "procedure failed"
	report := backup.BackupReport{
		Server: backup.ServerBackupReport{Attempted: true},
		Packages: map[models.PackageID]backup.PackageBackupReport{
			"acme-crm": {Error: &errMsg},
		},
	}
	if err := m.Notify(ctx, nil, LevelError, "backup-report", "Backup finished with errors", report, nil); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if err := m.Notify(ctx, nil, LevelInfo, "plain", "no payload", nil, nil); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	list, err := m.List(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	// Descending: plain first, report second.
	if list[0].Code != 0 || string(list[0].Data) != "null" {
		t.Fatalf("plain notification misencoded: code %d data %s", list[0].Code, list[0].Data)
	}
	if list[1].Code != 1 {
		t.Fatalf("backup report code mismatch: %d", list[1].Code)
	}
	if string(list[1].Data) == "null" {
		t.Fatalf("backup report payload missing")
	}
}

func TestListRejectsMalformedStoredLevel(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.db.Exec(`
		INSERT INTO notifications (package_id, created_at, code, level, title, message, data)
		VALUES (NULL, datetime('now'), 0, 'catastrophic', 't', 'm', NULL)
	`); err != nil {
		t.Fatalf("failed to seed malformed row: %v", err)
	}

	_, err := m.List(ctx, nil, 0)
	if err == nil {
		t.Fatalf("expected malformed level to fail the read")
	}
	if !errs.IsKind(err, errs.KindParseDBField) {
		t.Fatalf("expected parse-db-field kind, got %v", err)
	}
}

func TestPruneOlderThan(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.db.Exec(`
		INSERT INTO notifications (package_id, created_at, code, level, title, message, data)
		VALUES (NULL, ?, 0, 'info', 'old', 'm', NULL)
	`, time.Now().Add(-48*time.Hour).UTC()); err != nil {
		t.Fatalf("failed to seed old row: %v", err)
	}
	if err := m.Notify(ctx, nil, LevelInfo, "fresh", "m", nil, nil); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if err := m.PruneOlderThan(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if got := countRows(t, m); got != 1 {
		t.Fatalf("expected only the fresh row to survive, got %d", got)
	}
}
