package postgres

const schema = `
-- Artifacts table: content-addressed, immutable once submitted
CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    locator TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);

-- Validation results table
CREATE TABLE IF NOT EXISTS validations (
    id TEXT PRIMARY KEY,
    artifact_id TEXT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_validations_artifact ON validations(artifact_id);
CREATE INDEX IF NOT EXISTS idx_validations_status ON validations(status);
CREATE INDEX IF NOT EXISTS idx_validations_created_at ON validations(created_at);

-- Findings table: owned by their validation result, ordered by position
CREATE TABLE IF NOT EXISTS findings (
    id BIGSERIAL PRIMARY KEY,
    validation_id TEXT NOT NULL REFERENCES validations(id) ON DELETE CASCADE,
    validator_kind TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL,
    infrastructure BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_findings_validation ON findings(validation_id);

-- Recommendations table: back-references the validation result it derives from
CREATE TABLE IF NOT EXISTS recommendations (
    id TEXT PRIMARY KEY,
    validation_id TEXT NOT NULL REFERENCES validations(id),
    title TEXT NOT NULL CHECK(LENGTH(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'proposed',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    decided_at TIMESTAMPTZ,
    decided_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recommendations_validation ON recommendations(validation_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);

-- Enhancement records: at most one preview and one committed record per
-- recommendation
CREATE TABLE IF NOT EXISTS enhancements (
    id BIGSERIAL PRIMARY KEY,
    recommendation_id TEXT NOT NULL REFERENCES recommendations(id) ON DELETE CASCADE,
    preview BOOLEAN NOT NULL DEFAULT FALSE,
    enhanced_content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    applied_at TIMESTAMPTZ,
    UNIQUE (recommendation_id, preview)
);

-- Config table for key/value settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
