package store

// Schema creates every table and index. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS config (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT UNIQUE NOT NULL,
  value TEXT NOT NULL,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stats (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  date TEXT NOT NULL,
  period_type TEXT NOT NULL, -- 'daily', 'weekly', 'monthly', 'yearly'
  count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(date, period_type)
);

CREATE TABLE IF NOT EXISTS query_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tracking_number TEXT NOT NULL,
  status TEXT NOT NULL, -- 'success', 'failed'
  response_time INTEGER, -- milliseconds
  error_message TEXT,
  ip_address TEXT,
  user_agent TEXT,
  request_id TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_stats_date_period ON stats(date, period_type);
CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_query_logs_tracking_number ON query_logs(tracking_number);
`

// SiteConfigKey is the config key holding the public site settings.
const SiteConfigKey = "site"

// DefaultSiteConfig is the site config used when none is stored.
const DefaultSiteConfig = `{"title":"PGS Logistics Tracking","subtitle":"Global shipment tracking","description":"Track shipments by tracking number with real-time status updates.","keywords":"logistics,tracking,shipment,CBEL","contact":{"email":"support@pgs-log.com","phone":"+86-400-123-4567","address":"Zhangjiang Hi-Tech Park, Pudong, Shanghai"},"features":{"realTimeTracking":true,"multiFormat":true,"globalCoverage":true,"apiAccess":true},"social":{"website":"https://www.pgs-log.com","wechat":"PGS-Logistics"}}`
