package database

// Migration represents a single schema migration
type Migration struct {
	Version string
	Up      string
}

// migrations are applied in order; never edit an applied migration,
// append a new one instead.
var migrations = []Migration{
	{
		Version: "001_server_info",
		Up: `
			CREATE TABLE IF NOT EXISTS server_info (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				os_version TEXT NOT NULL,
				unread_notification_count INTEGER NOT NULL DEFAULT 0
			);
			INSERT OR IGNORE INTO server_info (id, os_version, unread_notification_count)
			VALUES (1, '0.1.0', 0);
		`,
	},
	{
		Version: "002_packages",
		Up: `
			CREATE TABLE IF NOT EXISTS packages (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				version TEXT NOT NULL,
				marketplace_url TEXT,
				installed_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS package_dependencies (
				package_id TEXT NOT NULL,
				depends_on TEXT NOT NULL,
				live_pointer INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (package_id, depends_on),
				FOREIGN KEY (package_id) REFERENCES packages(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_package_dependencies_depends_on
				ON package_dependencies(depends_on);
		`,
	},
	{
		Version: "003_notifications",
		Up: `
			CREATE TABLE IF NOT EXISTS notifications (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				package_id TEXT,
				created_at DATETIME NOT NULL DEFAULT (datetime('now')),
				code INTEGER NOT NULL,
				level TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				data TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_notifications_package_id
				ON notifications(package_id);
		`,
	},
	{
		Version: "004_network_keys",
		Up: `
			CREATE TABLE IF NOT EXISTS network_keys (
				package_id TEXT NOT NULL,
				interface_id TEXT NOT NULL,
				seed BLOB NOT NULL,
				created_at DATETIME NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (package_id, interface_id)
			);
		`,
	},
}
