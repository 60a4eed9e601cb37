package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel parses a stored level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelSuccess, LevelInfo, LevelWarning, LevelError:
		return Level(s), nil
	default:
		return "", errs.New(errs.KindParseDBField, "invalid notification level: %s", s)
	}
}

// Payload is a typed notification payload. The code discriminates the
// payload schema in the persisted row.
type Payload interface {
	NotificationCode() int
}

// NoPayload is the empty payload, stored as a NULL data column.
type NoPayload struct{}

// NotificationCode implements Payload.
func (NoPayload) NotificationCode() int { return 0 }

// Notification is a persisted ledger row. Immutable once created; deleted
// only by explicit operator action. The id is the sole ordering guarantee.
type Notification struct {
	ID        int64             `json:"id"`
	PackageID *models.PackageID `json:"package-id"`
	CreatedAt time.Time         `json:"created-at"`
	Code      int               `json:"code"`
	Level     Level             `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      json.RawMessage   `json:"data"`
}

type cacheKey struct {
	packageID models.PackageID
	hasPkg    bool
	level     Level
	title     string
}

// DebounceCache suppresses duplicate low-value notifications within a
// time window. Process-local and lost on restart; purely an optimization,
// never authoritative. Constructed once at process start and shared.
type DebounceCache struct {
	mu      sync.Mutex
	entries map[cacheKey]time.Time
	now     func() time.Time
}

// NewDebounceCache creates an empty debounce cache.
func NewDebounceCache() *DebounceCache {
	return &DebounceCache{
		entries: make(map[cacheKey]time.Time),
		now:     time.Now,
	}
}

// admit decides whether an event passes the debounce window and, if so,
// stamps the cache. The lock is held only for this check-and-update,
// never across a database write.
func (c *DebounceCache) admit(pkgID *models.PackageID, level Level, title string, interval *time.Duration) bool {
	key := cacheKey{level: level, title: title}
	if pkgID != nil {
		key.packageID = *pkgID
		key.hasPkg = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	last, seen := c.entries[key]
	if !seen || interval == nil || now.Sub(last) >= *interval {
		c.entries[key] = now
		return true
	}
	return false
}

// Manager is the persisted notification ledger.
type Manager struct {
	db    *sql.DB
	cache *DebounceCache
}

// NewManager creates a notification manager over the given database and
// debounce cache.
func NewManager(db *sql.DB, cache *DebounceCache) *Manager {
	return &Manager{db: db, cache: cache}
}

// Notify inserts a notification unless it is debounced. On admission the
// unread counter is incremented and the row committed together; a
// suppressed event is a silent no-op. debounce may be nil to always insert.
func (m *Manager) Notify(ctx context.Context, pkgID *models.PackageID, level Level, title, message string, payload Payload, debounce *time.Duration) error {
	if !m.cache.admit(pkgID, level, title, debounce) {
		return nil
	}

	if payload == nil {
		payload = NoPayload{}
	}
	var data *string
	if _, none := payload.(NoPayload); !none {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errs.Wrapf(errs.KindSerialization, err, "encode notification payload")
		}
		s := string(encoded)
		data = &s
	}

	var sqlPkgID *string
	if pkgID != nil {
		s := pkgID.String()
		sqlPkgID = &s
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindDatabase, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (package_id, created_at, code, level, title, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sqlPkgID, time.Now().UTC(), payload.NotificationCode(), string(level), title, message, data); err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "insert notification")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE server_info SET unread_notification_count = unread_notification_count + 1 WHERE id = 1
	`); err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "increment unread count")
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindDatabase, err)
	}
	return nil
}

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 40

// List returns up to limit notifications strictly descending by id,
// restricted to id < before when before is non-nil. Listing without a
// before cursor means "show me the latest" and resets the unread counter
// to zero as a side effect.
func (m *Manager) List(ctx context.Context, before *int64, limit uint) ([]Notification, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDatabase, err)
	}
	defer tx.Rollback()

	var rows *sql.Rows
	if before == nil {
		rows, err = tx.QueryContext(ctx, `
			SELECT id, package_id, created_at, code, level, title, message, data
			FROM notifications ORDER BY id DESC LIMIT ?
		`, limit)
	} else {
		rows, err = tx.QueryContext(ctx, `
			SELECT id, package_id, created_at, code, level, title, message, data
			FROM notifications WHERE id < ? ORDER BY id DESC LIMIT ?
		`, *before, limit)
	}
	if err != nil {
		return nil, errs.Wrapf(errs.KindDatabase, err, "query notifications")
	}

	notifications, err := scanNotifications(rows)
	if err != nil {
		return nil, err
	}

	if before == nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE server_info SET unread_notification_count = 0 WHERE id = 1
		`); err != nil {
			return nil, errs.Wrapf(errs.KindDatabase, err, "reset unread count")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.KindDatabase, err)
	}
	return notifications, nil
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		var pkgID sql.NullString
		var level string
		var data sql.NullString

		if err := rows.Scan(&n.ID, &pkgID, &n.CreatedAt, &n.Code, &level, &n.Title, &n.Message, &data); err != nil {
			return nil, errs.Wrapf(errs.KindDatabase, err, "scan notification")
		}

		parsed, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		n.Level = parsed

		if pkgID.Valid {
			id := models.PackageID(pkgID.String)
			n.PackageID = &id
		}
		if data.Valid {
			if !json.Valid([]byte(data.String)) {
				return nil, errs.New(errs.KindParseDBField, "invalid notification data for id %d", n.ID)
			}
			n.Data = json.RawMessage(data.String)
		} else {
			n.Data = json.RawMessage("null")
		}

		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Delete removes a single notification. The unread counter is untouched.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "delete notification %d", id)
	}
	return nil
}

// DeleteBefore removes every notification with id < before. The unread
// counter is untouched.
func (m *Manager) DeleteBefore(ctx context.Context, before int64) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM notifications WHERE id < ?`, before); err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "delete notifications before %d", before)
	}
	return nil
}

// PruneOlderThan removes notifications created before cutoff. Used by the
// retention job; the unread counter is untouched.
func (m *Manager) PruneOlderThan(ctx context.Context, cutoff time.Time) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "prune notifications")
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		log.Printf("[Notifications] Pruned %d notifications older than %s", affected, cutoff.Format(time.RFC3339))
	}
	return nil
}

// UnreadCount reads the server-wide unread notification counter.
func (m *Manager) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT unread_notification_count FROM server_info WHERE id = 1`).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.KindDatabase, err)
	}
	return count, nil
}
