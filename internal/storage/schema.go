package storage

import "database/sql"

// chunk_vectors is read and written by the vector package; it lives here so that
// chunk replacement and document deletion can clear it in the same transaction.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	content_preview TEXT,
	language TEXT,
	num_pages INTEGER NOT NULL DEFAULT 0,
	num_words INTEGER NOT NULL DEFAULT 0,
	num_chars INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'uploaded',
	error_message TEXT,
	created_at TIMESTAMP,
	updated_at TIMESTAMP,
	processed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	char_count INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	section_title TEXT,
	embedding TEXT,
	embedding_model TEXT,
	prev_chunk_id TEXT,
	next_chunk_id TEXT,
	created_at TIMESTAMP,
	UNIQUE (document_id, chunk_index),
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	embedding TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	synced_at TIMESTAMP,
	FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document_id ON chunk_vectors(document_id);

CREATE TABLE IF NOT EXISTS query_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	question TEXT NOT NULL,
	guardrails_latency REAL NOT NULL DEFAULT 0,
	retrieval_latency REAL NOT NULL DEFAULT 0,
	llm_latency REAL NOT NULL DEFAULT 0,
	total_latency REAL NOT NULL DEFAULT 0,
	query_tokens INTEGER NOT NULL DEFAULT 0,
	context_tokens INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	retrieval_cost REAL NOT NULL DEFAULT 0,
	llm_cost REAL NOT NULL DEFAULT 0,
	total_cost REAL NOT NULL DEFAULT 0,
	chunks_retrieved INTEGER NOT NULL DEFAULT 0,
	avg_similarity REAL NOT NULL DEFAULT 0,
	success INTEGER NOT NULL,
	error TEXT,
	guardrails_passed INTEGER NOT NULL,
	guardrails_violations TEXT
);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
