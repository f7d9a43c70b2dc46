package sqlite

const schema = `
-- Artifacts table: content-addressed, immutable once submitted
CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    locator TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);

-- Validation results table
CREATE TABLE IF NOT EXISTS validations (
    id TEXT PRIMARY KEY,
    artifact_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_validations_artifact ON validations(artifact_id);
CREATE INDEX IF NOT EXISTS idx_validations_status ON validations(status);
CREATE INDEX IF NOT EXISTS idx_validations_created_at ON validations(created_at);

-- Findings table: owned by their validation result, ordered by position
CREATE TABLE IF NOT EXISTS findings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    validation_id TEXT NOT NULL,
    validator_kind TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL,
    infrastructure INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (validation_id) REFERENCES validations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_findings_validation ON findings(validation_id);

-- Recommendations table: back-references the validation result it derives from
CREATE TABLE IF NOT EXISTS recommendations (
    id TEXT PRIMARY KEY,
    validation_id TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'proposed',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    decided_at DATETIME,
    decided_by TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (validation_id) REFERENCES validations(id)
);

CREATE INDEX IF NOT EXISTS idx_recommendations_validation ON recommendations(validation_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);

-- Enhancement records: at most one preview and one committed record per
-- recommendation
CREATE TABLE IF NOT EXISTS enhancements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recommendation_id TEXT NOT NULL,
    preview INTEGER NOT NULL DEFAULT 0,
    enhanced_content TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    applied_at DATETIME,
    FOREIGN KEY (recommendation_id) REFERENCES recommendations(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_enhancements_rec_preview
    ON enhancements(recommendation_id, preview);

-- Config table for key/value settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
