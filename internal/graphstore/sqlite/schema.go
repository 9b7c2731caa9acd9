package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	full_path TEXT NOT NULL,
	suffix TEXT,
	content BLOB,
	content_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	modified_at INTEGER NOT NULL,
	UNIQUE(full_path, content_hash)
);

CREATE TABLE IF NOT EXISTS ast_nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	span_key TEXT NOT NULL UNIQUE,
	shape_hash TEXT NOT NULL,
	type TEXT NOT NULL,
	file_uuid TEXT NOT NULL,
	start_byte INTEGER NOT NULL,
	end_byte INTEGER NOT NULL,
	start_row INTEGER NOT NULL,
	start_col INTEGER NOT NULL,
	end_row INTEGER NOT NULL,
	end_col INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ast_nodes_shape ON ast_nodes(shape_hash);
CREATE INDEX IF NOT EXISTS idx_ast_nodes_type_start ON ast_nodes(type, start_byte);

CREATE TABLE IF NOT EXISTS shape_owner (
	shape_hash TEXT PRIMARY KEY,
	node_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shape_refs (
	shape_hash TEXT PRIMARY KEY,
	bitmap BLOB NOT NULL
);

-- Mirrors the guard the property-graph backend keeps alongside its Cypher
-- PARENT_OF edges: (parent_id, child_id) is idempotent, while
-- (parent_id, child_index) is unique and fatal on conflict.
CREATE TABLE IF NOT EXISTS ast_edge_guard (
	parent_id INTEGER NOT NULL,
	child_id INTEGER NOT NULL,
	child_index INTEGER NOT NULL,
	PRIMARY KEY (parent_id, child_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_edge_guard_order ON ast_edge_guard(parent_id, child_index);

CREATE TABLE IF NOT EXISTS parent_of (
	parent_id INTEGER NOT NULL,
	child_id INTEGER NOT NULL,
	child_index INTEGER NOT NULL,
	PRIMARY KEY (parent_id, child_id)
);
CREATE INDEX IF NOT EXISTS idx_parent_of_parent ON parent_of(parent_id, child_index);

CREATE TABLE IF NOT EXISTS file_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	commit_id TEXT NOT NULL,
	file_uuid TEXT NOT NULL,
	path TEXT NOT NULL,
	language TEXT NOT NULL,
	author TEXT,
	ts TEXT,
	branch TEXT,
	UNIQUE(commit_id, file_uuid, path)
);
CREATE INDEX IF NOT EXISTS idx_file_versions_path_commit ON file_versions(path, commit_id);

CREATE TABLE IF NOT EXISTS next_version (
	prev_id INTEGER PRIMARY KEY,
	next_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS occurs_in (
	file_version_id INTEGER NOT NULL,
	node_id INTEGER NOT NULL,
	commit_id TEXT NOT NULL,
	file_uuid TEXT NOT NULL,
	start_byte INTEGER NOT NULL,
	end_byte INTEGER NOT NULL,
	PRIMARY KEY (file_version_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_occurs_node ON occurs_in(node_id);
`
