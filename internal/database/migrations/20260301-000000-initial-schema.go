package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "initial schema: accounts, api keys, widget sessions, analytics",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				plan TEXT NOT NULL DEFAULT 'free',
				live_key TEXT UNIQUE,
				test_key TEXT UNIQUE,
				allowed_domains TEXT NOT NULL DEFAULT '[]',
				monthly_quota INTEGER,
				total_quota INTEGER NOT NULL DEFAULT 100,
				quota_used INTEGER NOT NULL DEFAULT 0,
				studio_used INTEGER NOT NULL DEFAULT 0,
				widget_used INTEGER NOT NULL DEFAULT 0,
				quota_reset_at TEXT,
				status TEXT NOT NULL DEFAULT 'active',
				email_verified INTEGER NOT NULL DEFAULT 0,
				webhook_url TEXT,
				webhook_secret_encrypted TEXT,
				settings TEXT,
				stripe_customer_id TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_live_key ON accounts(live_key)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_test_key ON accounts(test_key)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_stripe ON accounts(stripe_customer_id)`,

			`CREATE TABLE IF NOT EXISTS api_keys (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				key TEXT NOT NULL UNIQUE,
				key_prefix TEXT NOT NULL,
				test_mode INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				last_used_at TEXT,
				revoked_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_account ON api_keys(account_id)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(key)`,

			`CREATE TABLE IF NOT EXISTS widget_sessions (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'pending',
				product_image TEXT NOT NULL,
				product_name TEXT,
				product_id TEXT,
				product_category TEXT,
				product_price REAL,
				product_currency TEXT,
				product_url TEXT,
				external_user_id TEXT,
				user_image TEXT,
				origin_domain TEXT,
				user_agent TEXT,
				ip_address TEXT,
				result_image TEXT,
				result_thumbnail TEXT,
				processing_time_ms INTEGER,
				error_code TEXT,
				error_message TEXT,
				expires_at TEXT NOT NULL,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_widget_sessions_account ON widget_sessions(account_id)`,
			`CREATE INDEX IF NOT EXISTS idx_widget_sessions_status ON widget_sessions(status)`,

			`CREATE TABLE IF NOT EXISTS analytics_events (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				session_id TEXT,
				event_type TEXT NOT NULL,
				event_data TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_analytics_account ON analytics_events(account_id)`,
			`CREATE INDEX IF NOT EXISTS idx_analytics_session ON analytics_events(session_id)`,
		},
	})
}
