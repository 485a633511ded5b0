package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func intPtr(v int) *int { return &v }

// rec builds a record whose embedding points mostly along axis.
func rec(source string, idx int, axis int, year *int, location string) Record {
	emb := make([]float32, testDims)
	emb[axis%testDims] = 1
	emb[(axis+1)%testDims] = float32(idx) * 0.01
	return Record{
		Text:        fmt.Sprintf("%s chunk %d", source, idx),
		Embedding:   emb,
		SourceFile:  source,
		FileType:    chunk.FileTypePDF,
		FilePath:    "/docs/" + source,
		ChunkIndex:  idx,
		DateYear:    year,
		Location:    location,
		ContentHash: "hash-" + source,
	}
}

func axis(i int) []float32 {
	v := make([]float32, testDims)
	v[i] = 1
	return v
}

// runBackendContract exercises behaviour every Backend must share.
func runBackendContract(t *testing.T, open func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("empty search and stats", func(t *testing.T) {
		b := open(t)

		results, err := b.Search(ctx, axis(0), 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)

		st, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.ChunkCount)
		assert.Equal(t, testDims, st.Dimension)
		assert.Nil(t, st.MinYear)
	})

	t.Run("upsert assigns increasing ids and ranks by similarity", func(t *testing.T) {
		// Given: records along different axes
		b := open(t)
		n, err := b.Upsert(ctx, []Record{
			rec("a.pdf", 0, 0, nil, ""),
			rec("b.pdf", 0, 1, nil, ""),
			rec("c.pdf", 0, 2, nil, ""),
		})
		require.NoError(t, err)
		require.Equal(t, 3, n)

		// When: searching along axis 1
		results, err := b.Search(ctx, axis(1), 3, nil)
		require.NoError(t, err)

		// Then: b.pdf ranks first and similarities never increase
		require.Len(t, results, 3)
		assert.Equal(t, "b.pdf", results[0].SourceFile)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
		}
		assert.NotZero(t, results[0].ID)
	})

	t.Run("k beyond any window returns everything", func(t *testing.T) {
		// Given: two records
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, ""), rec("a.pdf", 1, 1, nil, "")})
		require.NoError(t, err)

		// When: k is the largest int, with and without a filter
		all, err := b.Search(ctx, axis(0), math.MaxInt, nil)
		require.NoError(t, err)
		filtered, err := b.Search(ctx, axis(0), math.MaxInt, &Filter{SourceFile: "a.pdf"})
		require.NoError(t, err)

		// Then: both records come back
		assert.Len(t, all, 2)
		assert.Len(t, filtered, 2)
	})

	t.Run("ties break by ascending id", func(t *testing.T) {
		b := open(t)
		first := rec("x.pdf", 0, 0, nil, "")
		second := rec("y.pdf", 0, 0, nil, "")
		_, err := b.Upsert(ctx, []Record{first, second})
		require.NoError(t, err)

		results, err := b.Search(ctx, axis(0), 2, nil)
		require.NoError(t, err)

		require.Len(t, results, 2)
		assert.Less(t, results[0].ID, results[1].ID)
		assert.Equal(t, "x.pdf", results[0].SourceFile)
	})

	t.Run("k larger than index returns everything", func(t *testing.T) {
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, ""), rec("a.pdf", 1, 0, nil, "")})
		require.NoError(t, err)

		results, err := b.Search(ctx, axis(0), 50, nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		b := open(t)

		_, err := b.Search(ctx, axis(0), 0, nil)
		assert.True(t, docerrors.IsValidation(err))

		_, err = b.Search(ctx, []float32{1, 0}, 1, nil)
		assert.Equal(t, docerrors.ErrCodeDimensionMismatch, docerrors.GetCode(err))

		_, err = b.Search(ctx, axis(0), 1, &Filter{YearRange: &[2]int{1900, 1850}})
		assert.True(t, docerrors.IsValidation(err))

		bad := rec("a.pdf", 0, 0, nil, "")
		bad.Embedding = []float32{1}
		_, err = b.Upsert(ctx, []Record{bad})
		assert.Equal(t, docerrors.ErrCodeDimensionMismatch, docerrors.GetCode(err))
	})

	t.Run("filters", func(t *testing.T) {
		b := open(t)
		_, err := b.Upsert(ctx, []Record{
			rec("a.pdf", 0, 0, intPtr(1852), "Bendigo"),
			rec("a.pdf", 1, 0, intPtr(1860), "Ballarat"),
			rec("b.docx", 0, 0, intPtr(1875), "bendigo"),
			rec("b.docx", 1, 0, nil, ""),
		})
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter *Filter
			want   int
		}{
			{"year", &Filter{Year: intPtr(1860)}, 1},
			{"year range inclusive", &Filter{YearRange: &[2]int{1852, 1860}}, 2},
			{"location case-insensitive", &Filter{Location: "BENDIGO"}, 2},
			{"source file", &Filter{SourceFile: "b.docx"}, 2},
			{"conjunction", &Filter{Location: "bendigo", YearRange: &[2]int{1870, 1880}}, 1},
			{"no match", &Filter{Year: intPtr(1999)}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, err := b.Search(ctx, axis(0), 10, tt.filter)
				require.NoError(t, err)
				assert.Len(t, results, tt.want)
				for _, r := range results {
					assert.True(t, tt.filter.Matches(&r.Record))
				}
			})
		}
	})

	t.Run("apply replaces sources atomically", func(t *testing.T) {
		// Given: two sources indexed
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, ""), rec("b.pdf", 0, 1, nil, "")})
		require.NoError(t, err)

		// When: a.pdf is replaced by two new chunks
		newA := []Record{rec("a.pdf", 0, 2, nil, ""), rec("a.pdf", 1, 2, nil, "")}
		newA[0].ContentHash, newA[1].ContentHash = "hash-a2", "hash-a2"
		n, err := b.Apply(ctx, Batch{Replace: []string{"a.pdf"}, Records: newA})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// Then: b.pdf is untouched and a.pdf carries the new hash
		sources, err := b.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.pdf": "hash-a2", "b.pdf": "hash-b.pdf"}, sources)

		st, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.ChunkCount)
		assert.Equal(t, 2, st.SourceCount)
	})

	t.Run("reset then clear is idempotent", func(t *testing.T) {
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, intPtr(1852), ""), rec("b.pdf", 0, 1, intPtr(1899), "")})
		require.NoError(t, err)

		st, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1852, *st.MinYear)
		assert.Equal(t, 1899, *st.MaxYear)

		n, err := b.Apply(ctx, Batch{Reset: true, Records: []Record{rec("c.pdf", 0, 2, nil, "")}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		st, err = b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.ChunkCount)

		require.NoError(t, b.Clear(ctx))
		require.NoError(t, b.Clear(ctx))
		st, err = b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.ChunkCount)
	})

	t.Run("ids keep increasing after clear", func(t *testing.T) {
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, "")})
		require.NoError(t, err)
		before, err := b.Search(ctx, axis(0), 1, nil)
		require.NoError(t, err)
		require.NoError(t, b.Clear(ctx))

		_, err = b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, "")})
		require.NoError(t, err)
		after, err := b.Search(ctx, axis(0), 1, nil)
		require.NoError(t, err)

		assert.Greater(t, after[0].ID, before[0].ID)
	})

	t.Run("zero query vector scores zero", func(t *testing.T) {
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, "")})
		require.NoError(t, err)

		results, err := b.Search(ctx, make([]float32, testDims), 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 0.0, results[0].Similarity, 1e-9)
	})

	t.Run("searches run alongside commits", func(t *testing.T) {
		// Given: an index with one source
		b := open(t)
		_, err := b.Upsert(ctx, []Record{rec("a.pdf", 0, 0, nil, ""), rec("a.pdf", 1, 0, nil, "")})
		require.NoError(t, err)

		// When: one goroutine repeatedly replaces the source while others search
		var wg sync.WaitGroup
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := b.Apply(ctx, Batch{Replace: []string{"a.pdf"}, Records: []Record{rec("a.pdf", 0, 0, nil, ""), rec("a.pdf", 1, 0, nil, "")}})
				assert.NoError(t, err)
			}
			close(stop)
		}()

		// Then: every search sees a whole batch, never zero or three chunks
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					results, err := b.Search(ctx, axis(0), 10, nil)
					if !assert.NoError(t, err) {
						return
					}
					assert.Len(t, results, 2)
				}
			}()
		}
		wg.Wait()
	})
}
