package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/uptrace/bun"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 256

// documentRow maps the documents table.
type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Content     string    `bun:"content,notnull"`
	Embedding   Vector    `bun:"embedding,notnull"`
	SourceFile  string    `bun:"source_file,notnull"`
	FileType    string    `bun:"file_type"`
	FilePath    string    `bun:"file_path"`
	ChunkIndex  int       `bun:"chunk_index,notnull"`
	DateYear    *int      `bun:"date_year"`
	Location    string    `bun:"location,nullzero"`
	ContentHash string    `bun:"content_hash,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

// searchRow is a documentRow plus the computed distance.
type searchRow struct {
	ID          int64          `bun:"id"`
	Content     string         `bun:"content"`
	Embedding   Vector         `bun:"embedding"`
	SourceFile  string         `bun:"source_file"`
	FileType    string         `bun:"file_type"`
	FilePath    string         `bun:"file_path"`
	ChunkIndex  int            `bun:"chunk_index"`
	DateYear    sql.NullInt64  `bun:"date_year"`
	Location    sql.NullString `bun:"location"`
	ContentHash string         `bun:"content_hash"`
	CreatedAt   time.Time      `bun:"created_at"`
	Distance    float64        `bun:"distance"`
}

type sourceRow struct {
	SourceFile  string `bun:"source_file"`
	ContentHash string `bun:"content_hash"`
}

// metaRow stores index-wide settings such as the vector dimension.
type metaRow struct {
	bun.BaseModel `bun:"table:docsearch_meta"`

	Name  string `bun:"name,pk"`
	Value string `bun:"value,notnull"`
}

// dialectSQL holds the statements that differ between engines.
type dialectSQL struct {
	name string
	// distance is a SQL expression with one placeholder for the query vector.
	distance string
	schema   func(dims int) []string
	// searchSetup runs inside the search transaction before the query.
	searchSetup []string
}

// RelationalStore keeps chunks in a SQL table with a vector column and
// evaluates filters in the WHERE clause, so filtered search is exact.
type RelationalStore struct {
	db      *bun.DB
	dialect dialectSQL
	dims    int
}

func newRelationalStore(ctx context.Context, db *bun.DB, dialect dialectSQL, dims int) (*RelationalStore, error) {
	s := &RelationalStore{db: db, dialect: dialect, dims: dims}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// migrate creates the schema and pins the index dimension on first use.
func (s *RelationalStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema(s.dims) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to create schema", err).
				WithDetail("backend", s.dialect.name)
		}
	}

	pin := &metaRow{Name: "dimension", Value: fmt.Sprint(s.dims)}
	if _, err := s.db.NewInsert().Model(pin).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to record index dimension", err)
	}

	var stored metaRow
	if err := s.db.NewSelect().Model(&stored).Where("name = ?", "dimension").Scan(ctx); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to read index dimension", err)
	}
	if stored.Value != pin.Value {
		var got int
		_, _ = fmt.Sscan(stored.Value, &got)
		return docerrors.DimensionMismatch(s.dims, got).WithDetail("backend", s.dialect.name)
	}
	return nil
}

// Upsert appends records.
func (s *RelationalStore) Upsert(ctx context.Context, records []Record) (int, error) {
	return s.Apply(ctx, Batch{Records: records})
}

// Apply runs the whole batch in one transaction.
func (s *RelationalStore) Apply(ctx context.Context, batch Batch) (int, error) {
	if err := validateRecords(s.dims, batch.Records); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([]documentRow, len(batch.Records))
	for i, r := range batch.Records {
		rows[i] = documentRow{
			Content:     r.Text,
			Embedding:   Vector(r.Embedding),
			SourceFile:  r.SourceFile,
			FileType:    string(r.FileType),
			FilePath:    r.FilePath,
			ChunkIndex:  r.ChunkIndex,
			DateYear:    r.DateYear,
			Location:    r.Location,
			ContentHash: r.ContentHash,
			CreatedAt:   now,
		}
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if batch.Reset {
			if _, err := tx.NewDelete().Model((*documentRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		} else if len(batch.Replace) > 0 {
			if _, err := tx.NewDelete().Model((*documentRow)(nil)).
				Where("source_file IN (?)", bun.In(batch.Replace)).
				Exec(ctx); err != nil {
				return fmt.Errorf("replace: %w", err)
			}
		}

		for start := 0; start < len(rows); start += insertBatchSize {
			part := rows[start:min(start+insertBatchSize, len(rows))]
			if _, err := tx.NewInsert().Model(&part).Exec(ctx); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, docerrors.New(docerrors.ErrCodeIndexFailed, "failed to commit index batch", err).
			WithDetail("backend", s.dialect.name)
	}

	slog.Debug("relational_store_commit",
		slog.String("backend", s.dialect.name),
		slog.Bool("reset", batch.Reset),
		slog.Int("replaced_sources", len(batch.Replace)),
		slog.Int("added", len(rows)))

	return len(rows), nil
}

// Search orders by vector distance in SQL with filters applied before ranking.
func (s *RelationalStore) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if err := validateSearch(s.dims, query, k, filter); err != nil {
		return nil, err
	}

	var rows []searchRow
	var err error
	if len(s.dialect.searchSetup) == 0 {
		err = s.searchQuery(s.db, query, k, filter).Scan(ctx, &rows)
	} else {
		err = s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
			for _, stmt := range s.dialect.searchSetup {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return s.searchQuery(tx, query, k, filter).Scan(ctx, &rows)
		})
	}
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "vector search failed", err).
			WithDetail("backend", s.dialect.name)
	}

	results := make([]Result, len(rows))
	for i, row := range rows {
		sim := 1 - row.Distance
		if math.IsNaN(sim) {
			sim = 0
		}
		results[i] = Result{Record: row.record(), Similarity: sim}
	}
	return results, nil
}

func (s *RelationalStore) searchQuery(db bun.IDB, query []float32, k int, filter *Filter) *bun.SelectQuery {
	q := db.NewSelect().
		TableExpr("documents AS d").
		ColumnExpr("d.id, d.content, d.embedding, d.source_file, d.file_type, d.file_path").
		ColumnExpr("d.chunk_index, d.date_year, d.location, d.content_hash, d.created_at").
		ColumnExpr(s.dialect.distance+" AS distance", Vector(query)).
		OrderExpr("distance ASC").
		OrderExpr("d.id ASC").
		Limit(k)

	if filter != nil {
		if filter.Year != nil {
			q = q.Where("d.date_year = ?", *filter.Year)
		}
		if filter.YearRange != nil {
			q = q.Where("d.date_year BETWEEN ? AND ?", filter.YearRange[0], filter.YearRange[1])
		}
		if filter.Location != "" {
			q = q.Where("LOWER(d.location) = LOWER(?)", filter.Location)
		}
		if filter.SourceFile != "" {
			q = q.Where("d.source_file = ?", filter.SourceFile)
		}
	}
	return q
}

func (row *searchRow) record() Record {
	r := Record{
		ID:          row.ID,
		Text:        row.Content,
		Embedding:   []float32(row.Embedding),
		SourceFile:  row.SourceFile,
		FileType:    chunk.FileType(row.FileType),
		FilePath:    row.FilePath,
		ChunkIndex:  row.ChunkIndex,
		Location:    row.Location.String,
		ContentHash: row.ContentHash,
		CreatedAt:   row.CreatedAt,
	}
	if row.DateYear.Valid {
		y := int(row.DateYear.Int64)
		r.DateYear = &y
	}
	return r
}

// Stats aggregates counts in one query.
func (s *RelationalStore) Stats(ctx context.Context) (Stats, error) {
	var count, sources int
	var minYear, maxYear sql.NullInt64

	err := s.db.NewSelect().
		TableExpr("documents AS d").
		ColumnExpr("COUNT(*), COUNT(DISTINCT d.source_file), MIN(d.date_year), MAX(d.date_year)").
		Scan(ctx, &count, &sources, &minYear, &maxYear)
	if err != nil {
		return Stats{}, docerrors.New(docerrors.ErrCodeSearchFailed, "failed to read index stats", err)
	}

	st := Stats{Backend: s.dialect.name, ChunkCount: count, SourceCount: sources, Dimension: s.dims}
	if minYear.Valid {
		v := int(minYear.Int64)
		st.MinYear = &v
	}
	if maxYear.Valid {
		v := int(maxYear.Int64)
		st.MaxYear = &v
	}
	return st, nil
}

// Sources maps source files to content hashes.
func (s *RelationalStore) Sources(ctx context.Context) (map[string]string, error) {
	var rows []sourceRow
	err := s.db.NewSelect().
		TableExpr("documents AS d").
		ColumnExpr("DISTINCT d.source_file, d.content_hash").
		Scan(ctx, &rows)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "failed to list indexed sources", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.SourceFile] = r.ContentHash
	}
	return out, nil
}

// Clear deletes every row.
func (s *RelationalStore) Clear(ctx context.Context) error {
	_, err := s.Apply(ctx, Batch{Reset: true})
	return err
}

// Dimensions returns the index dimension.
func (s *RelationalStore) Dimensions() int { return s.dims }

// Name returns the dialect name.
func (s *RelationalStore) Name() string { return s.dialect.name }

// DB exposes the underlying handle for diagnostics.
func (s *RelationalStore) DB() *bun.DB { return s.db }

// Close closes the connection pool.
func (s *RelationalStore) Close() error {
	return s.db.Close()
}

var _ Backend = (*RelationalStore)(nil)
