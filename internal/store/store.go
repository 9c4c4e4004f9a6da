// Package store is the embedded, single-process SQL store for every
// DomainOS entity, built on database/sql with an idempotent migration run
// at open, using modernc.org/sqlite (pure Go, no cgo).
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the single sqlite handle. The process is single-writer;
// SetMaxOpenConns(1) makes that explicit at the driver level
// rather than relying on WAL's concurrent-reader semantics to paper over a
// second writer.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS domains (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kb_path TEXT NOT NULL,
	identity TEXT NOT NULL DEFAULT '',
	escalation_triggers TEXT NOT NULL DEFAULT '[]',
	allow_gmail INTEGER NOT NULL DEFAULT 0,
	model_provider TEXT,
	model_name TEXT,
	force_tool_attempt INTEGER NOT NULL DEFAULT 0,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kb_files (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	relative_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	last_synced_at TEXT NOT NULL,
	tier TEXT NOT NULL,
	tier_source TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_kb_files_domain_path ON kb_files(domain_id, relative_path);

CREATE TABLE IF NOT EXISTS protocols (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_protocols_domain_name ON protocols(domain_id, name);

CREATE TABLE IF NOT EXISTS shared_protocols (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	is_enabled INTEGER NOT NULL DEFAULT 1,
	scope TEXT NOT NULL DEFAULT 'global'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_shared_protocols_scope_name ON shared_protocols(scope, name);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_domain_created ON chat_messages(domain_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS conversation_summaries (
	domain_id TEXT PRIMARY KEY REFERENCES domains(id) ON DELETE CASCADE,
	summary_text TEXT NOT NULL,
	summary_version INTEGER NOT NULL DEFAULT 1,
	last_summarized_created_at TEXT,
	summary_hash TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	session_id TEXT,
	agent_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	change_description TEXT NOT NULL,
	content_hash TEXT,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_domain_hash ON audit_entries(domain_id, content_hash);

CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	session_id TEXT,
	decision_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	rationale TEXT NOT NULL,
	downside TEXT,
	revisit_trigger TEXT,
	linked_files TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'active',
	supersedes_decision_id TEXT,
	confidence TEXT,
	horizon TEXT,
	reversibility_class TEXT,
	category TEXT,
	authority TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_domain_status ON decisions(domain_id, status);

CREATE TABLE IF NOT EXISTS gap_flags (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	session_id TEXT,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	source_message TEXT,
	status TEXT NOT NULL DEFAULT 'open',
	resolved_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gap_flags_domain_status ON gap_flags(domain_id, status);

CREATE TABLE IF NOT EXISTS advisory_artifacts (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	session_id TEXT,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	content TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_advisory_domain_fingerprint ON advisory_artifacts(domain_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_advisory_domain_created ON advisory_artifacts(domain_id, created_at);

CREATE TABLE IF NOT EXISTS deadlines (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	due_date TEXT NOT NULL,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	source TEXT NOT NULL,
	source_ref TEXT,
	snoozed_until TEXT,
	completed_at TEXT,
	cancelled_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deadlines_domain_status_due ON deadlines(domain_id, status, due_date);

CREATE TABLE IF NOT EXISTS domain_relationships (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	sibling_domain_id TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	dependency_type TEXT NOT NULL,
	description TEXT
);
CREATE INDEX IF NOT EXISTS idx_relationships_domain ON domain_relationships(domain_id);

CREATE TABLE IF NOT EXISTS automations (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	trigger_cron TEXT,
	trigger_event TEXT,
	prompt_template TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_config TEXT NOT NULL DEFAULT '{}',
	enabled INTEGER NOT NULL DEFAULT 1,
	catch_up_enabled INTEGER NOT NULL DEFAULT 0,
	store_payloads INTEGER NOT NULL DEFAULT 0,
	deadline_window_days INTEGER,
	next_run_at TEXT,
	failure_streak INTEGER NOT NULL DEFAULT 0,
	cooldown_until TEXT,
	run_count INTEGER NOT NULL DEFAULT 0,
	duplicate_skip_count INTEGER NOT NULL DEFAULT 0,
	last_duplicate_at TEXT,
	last_error TEXT,
	last_run_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_automations_enabled_trigger ON automations(enabled, trigger_type);

CREATE TABLE IF NOT EXISTS automation_runs (
	id TEXT PRIMARY KEY,
	automation_id TEXT NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
	domain_id TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	trigger_event TEXT,
	trigger_data TEXT,
	dedupe_key TEXT,
	prompt_hash TEXT,
	prompt_rendered TEXT,
	response_hash TEXT,
	llm_response TEXT,
	action_type TEXT NOT NULL,
	action_result TEXT,
	action_external_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	error_code TEXT,
	duration_ms INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_automation_runs_dedupe ON automation_runs(dedupe_key) WHERE dedupe_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_automation_runs_automation ON automation_runs(automation_id, created_at DESC);

CREATE TABLE IF NOT EXISTS mission_runs (
	id TEXT PRIMARY KEY,
	mission_type TEXT NOT NULL,
	domain_id TEXT,
	inputs_hash TEXT NOT NULL,
	context_hash TEXT NOT NULL,
	prompt_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	raw_output TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mission_actions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES mission_runs(id) ON DELETE CASCADE,
	action_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_payload TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	result TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0
);
`

// Open creates dbPath (and its schema, idempotently) if needed and returns a
// ready Store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for packages that need bespoke queries
// (advisory rate limiting, automation dedup) without a repository method.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
