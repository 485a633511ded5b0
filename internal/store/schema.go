package store

import "fmt"

// ivfflatLists is the list count of the pg vector index. Searches probe every
// list, which keeps ivfflat results identical to a sequential scan.
const ivfflatLists = 100

// postgresSQL targets Postgres with the pgvector extension.
var postgresSQL = dialectSQL{
	name:     BackendPostgres,
	distance: "d.embedding <=> CAST(? AS vector)",
	schema: func(dims int) []string {
		return []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	source_file TEXT NOT NULL,
	file_type TEXT,
	file_path TEXT,
	chunk_index INTEGER NOT NULL,
	date_year INTEGER,
	location TEXT,
	content_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, dims),
			`CREATE INDEX IF NOT EXISTS documents_embedding_idx
	ON documents USING ivfflat (embedding vector_cosine_ops) WITH (lists = `+fmt.Sprint(ivfflatLists)+`)`,
			`CREATE INDEX IF NOT EXISTS documents_source_file_idx ON documents (source_file)`,
			`CREATE INDEX IF NOT EXISTS documents_date_year_idx ON documents (date_year)`,
			`CREATE INDEX IF NOT EXISTS documents_location_idx ON documents (location)`,
			`CREATE TABLE IF NOT EXISTS docsearch_meta (name TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		}
	},
	searchSetup: []string{fmt.Sprintf("SET LOCAL ivfflat.probes = %d", ivfflatLists)},
}

// sqliteSQL targets the embedded engine. Vectors are stored as text and
// compared by the vec_cosine_distance function registered in openSQLite.
var sqliteSQL = dialectSQL{
	name:     BackendSQLite,
	distance: "vec_cosine_distance(d.embedding, ?)",
	schema: func(int) []string {
		return []string{
			`CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	embedding TEXT NOT NULL,
	source_file TEXT NOT NULL,
	file_type TEXT,
	file_path TEXT,
	chunk_index INTEGER NOT NULL,
	date_year INTEGER,
	location TEXT,
	content_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
			`CREATE INDEX IF NOT EXISTS documents_source_file_idx ON documents (source_file)`,
			`CREATE INDEX IF NOT EXISTS documents_date_year_idx ON documents (date_year)`,
			`CREATE INDEX IF NOT EXISTS documents_location_idx ON documents (location)`,
			`CREATE TABLE IF NOT EXISTS docsearch_meta (name TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		}
	},
}
