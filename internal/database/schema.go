package database

// schema is the single source of truth for the database layout.
// Timestamps are Unix seconds; amounts are decimal strings so that
// quantities larger than int64 survive round-trips exactly.
const schema = `
CREATE TABLE IF NOT EXISTS enrollments (
    user_address    TEXT PRIMARY KEY,
    preferences     TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1,
    last_checked_at INTEGER,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_active ON enrollments(is_active);

CREATE TABLE IF NOT EXISTS orders (
    id             TEXT PRIMARY KEY,
    user_address   TEXT NOT NULL,
    maker_asset    TEXT NOT NULL,
    taker_asset    TEXT NOT NULL,
    making_amount  TEXT NOT NULL,
    taking_amount  TEXT NOT NULL,
    nonce          INTEGER NOT NULL,
    signed_payload TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'created',
    failure_reason TEXT,
    tx_hash        TEXT,
    expires_at     INTEGER NOT NULL,
    created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_address);
CREATE INDEX IF NOT EXISTS idx_orders_expires ON orders(expires_at);
`
