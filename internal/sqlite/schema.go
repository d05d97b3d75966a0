package sqlite

// Money columns are TEXT holding decimal strings; times are fixed-width UTC
// TEXT (see timeLayout) so they compare correctly as strings.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    email       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS books (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    price       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS discounts (
    id          TEXT PRIMARY KEY,
    book_id     TEXT NOT NULL REFERENCES books(id),
    percentage  TEXT NOT NULL,
    start_date  TEXT NOT NULL,
    end_date    TEXT NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_discounts_book ON discounts(book_id);

CREATE TABLE IF NOT EXISTS inventory (
    book_id     TEXT PRIMARY KEY REFERENCES books(id),
    quantity    INTEGER NOT NULL CHECK (quantity >= 0)
);

CREATE TABLE IF NOT EXISTS member_discounts (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES users(id),
    percentage  TEXT NOT NULL,
    is_used     INTEGER NOT NULL DEFAULT 0,
    expiry_date TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_member_discounts_user ON member_discounts(user_id, is_used);

CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(id),
    order_date      TEXT NOT NULL,
    total_amount    TEXT NOT NULL,
    discount_amount TEXT NOT NULL,
    final_amount    TEXT NOT NULL,
    status          TEXT NOT NULL,
    claim_code      TEXT NOT NULL,
    is_claimed      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, order_date);
CREATE UNIQUE INDEX IF NOT EXISTS uq_orders_pending_claim ON orders(claim_code) WHERE status = 'Pending';

CREATE TABLE IF NOT EXISTS order_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    book_id     TEXT NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity > 0),
    unit_price  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

-- append-only, one row per status change
CREATE TABLE IF NOT EXISTS order_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    status      TEXT NOT NULL,
    status_date TEXT NOT NULL,
    notes       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_order_history_order ON order_history(order_id, id);
`
