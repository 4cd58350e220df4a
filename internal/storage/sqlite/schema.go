package sqlite

const schema = `
-- Collectors (Bandcamp fans). last_updated is unix seconds of the last
-- completed crawl; 0 means never fully crawled.
CREATE TABLE IF NOT EXISTS collector (
    fan_id INTEGER PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    token TEXT,
    last_updated INTEGER NOT NULL DEFAULT 0
);

-- Items (albums and tracks, with tracks collapsed into their album)
CREATE TABLE IF NOT EXISTS item (
    item_id INTEGER PRIMARY KEY,
    item_type TEXT NOT NULL,
    item_title TEXT NOT NULL,
    item_url TEXT NOT NULL,
    band_id INTEGER NOT NULL DEFAULT 0,
    band_name TEXT NOT NULL DEFAULT '',
    token TEXT,
    also_collected_count INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL DEFAULT 0
);

-- Fan -> item edges, discovered by crawling a fan's collection
CREATE TABLE IF NOT EXISTS collects (
    fan_id INTEGER NOT NULL,
    item_id INTEGER NOT NULL,
    PRIMARY KEY (fan_id, item_id)
);

-- Item -> fan edges, discovered by crawling an item's collectors page
CREATE TABLE IF NOT EXISTS collected_by (
    item_id INTEGER NOT NULL,
    fan_id INTEGER NOT NULL,
    PRIMARY KEY (item_id, fan_id)
);

-- Work queues. Rows are peeked in id order and removed only once the
-- entity's crawl reached a terminal outcome.
CREATE TABLE IF NOT EXISTS collector_collection_queue (
    fan_id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS item_collected_by_queue (
    item_id INTEGER PRIMARY KEY
);

-- Per-fan crawl progress. A fan with no row here is done (stage 3 is
-- synthesized, never stored).
CREATE TABLE IF NOT EXISTS collection_target (
    fan_id INTEGER PRIMARY KEY,
    stage INTEGER NOT NULL,
    count_left INTEGER NOT NULL,
    count_total INTEGER NOT NULL,
    eta INTEGER NOT NULL
);

-- Reverse-edge lookups (stage-2 requirements, relevant users)
CREATE INDEX IF NOT EXISTS idx_collects_item ON collects(item_id);
CREATE INDEX IF NOT EXISTS idx_collected_by_fan ON collected_by(fan_id);

-- Staleness sweeps
CREATE INDEX IF NOT EXISTS idx_collector_last_updated ON collector(last_updated);
CREATE INDEX IF NOT EXISTS idx_item_last_updated ON item(last_updated);
`
