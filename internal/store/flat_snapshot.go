package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Snapshot file names inside the vector store directory.
const (
	VectorsFile = "vectors.bin"
	ChunksFile  = "chunks.meta"
)

const snapshotVersion = 2

var vectorsMagic = [4]byte{'D', 'S', 'V', 'F'}

// vectorsHeader prefixes vectors.bin; the matrix follows as count*dims
// little-endian float32 values in record order.
type vectorsHeader struct {
	Magic      [4]byte
	Version    uint32
	Dims       uint32
	Count      uint64
	Generation [16]byte
}

// chunksMeta is the gob payload of chunks.meta. Records carry no embeddings;
// record i owns row i of the vector matrix. Generation must equal the one in
// the vectors header written by the same commit.
type chunksMeta struct {
	Version    int
	Dimensions int
	Generation [16]byte
	NextID     int64
	Records    []Record
}

// writeSnapshot commits snap as vectors.bin + chunks.meta under the
// directory's exclusive lock. Both files are written and synced under temp
// names before either is renamed into place, and both carry the same
// generation. A crash between the two renames leaves chunks.meta.tmp behind
// for Load to finish the commit. Callers hold s.mu.
func (s *FlatStore) writeSnapshot(ctx context.Context, snap *flatSnapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return docerrors.New(docerrors.ErrCodeFilePermission, "failed to create vector store directory", err).
			WithDetail("dir", s.dir)
	}
	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	gen := uuid.New()
	vecPath := filepath.Join(s.dir, VectorsFile)
	metaPath := filepath.Join(s.dir, ChunksFile)

	if err := writeTemp(vecPath, func(w io.Writer) error {
		return writeVectors(w, s.dims, gen, snap.records)
	}); err != nil {
		return writeError(VectorsFile, err)
	}

	meta := chunksMeta{
		Version:    snapshotVersion,
		Dimensions: s.dims,
		Generation: gen,
		NextID:     snap.nextID,
		Records:    make([]Record, len(snap.records)),
	}
	for i, r := range snap.records {
		r.Embedding = nil
		meta.Records[i] = r
	}
	if err := writeTemp(metaPath, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		_ = os.Remove(vecPath + ".tmp")
		return writeError(ChunksFile, err)
	}

	if err := os.Rename(vecPath+".tmp", vecPath); err != nil {
		_ = os.Remove(vecPath + ".tmp")
		_ = os.Remove(metaPath + ".tmp")
		return writeError(VectorsFile, err)
	}
	syncDir(s.dir)
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		// vectors.bin already belongs to the new generation. Without the
		// temp file Load reports the pair as corrupt instead of finishing a
		// commit the caller was told failed.
		_ = os.Remove(metaPath + ".tmp")
		return writeError(ChunksFile, err)
	}
	syncDir(s.dir)

	slog.Debug("flat_store_persisted",
		slog.String("dir", s.dir),
		slog.String("generation", gen.String()),
		slog.Int("records", len(snap.records)))
	return nil
}

func (s *FlatStore) unlock() {
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("failed to release snapshot lock", slog.String("error", err.Error()))
	}
}

// writeError reports a failed snapshot write; a full disk is fatal.
func writeError(name string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return docerrors.New(docerrors.ErrCodeDiskFull, "no space left for the index snapshot", err).
			WithDetail("file", name).
			WithSuggestion("Free disk space, then run index again")
	}
	return fmt.Errorf("failed to write %s: %w", name, err)
}

// Load replaces the in-memory state with the snapshot on disk. A directory
// without snapshot files loads as an empty index. A pair whose generations
// differ is corrupt unless chunks.meta.tmp holds the missing half of an
// interrupted commit, in which case the commit is completed first.
func (s *FlatStore) Load(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	vecPath := filepath.Join(s.dir, VectorsFile)
	metaPath := filepath.Join(s.dir, ChunksFile)
	vecExists, err := fileExists(vecPath)
	if err != nil {
		return err
	}
	metaExists, err := fileExists(metaPath)
	if err != nil {
		return err
	}

	switch {
	case !vecExists && !metaExists:
		s.snap.Store(&flatSnapshot{nextID: 1})
		return nil
	case !vecExists:
		return corruptSnapshot(s.dir, errors.New("vectors file is missing"))
	}

	hdr, matrix, err := readVectors(vecPath, s.dims)
	if err != nil {
		var de *docerrors.DocError
		if errors.As(err, &de) {
			return err
		}
		return corruptSnapshot(s.dir, err)
	}

	meta, err := s.matchingMeta(metaPath, metaExists, hdr.Generation)
	if err != nil {
		return corruptSnapshot(s.dir, err)
	}
	if meta.Dimensions != s.dims {
		return docerrors.DimensionMismatch(s.dims, meta.Dimensions).WithDetail("dir", s.dir)
	}
	if uint64(len(meta.Records)) != hdr.Count {
		return corruptSnapshot(s.dir,
			fmt.Errorf("vectors file holds %d rows, metadata holds %d", hdr.Count, len(meta.Records)))
	}

	records := meta.Records
	for i := range records {
		records[i].Embedding = matrix[i*s.dims : (i+1)*s.dims : (i+1)*s.dims]
	}
	s.snap.Store(&flatSnapshot{records: records, nextID: meta.NextID})

	slog.Debug("flat_store_loaded", slog.String("dir", s.dir), slog.Int("records", len(records)))
	return nil
}

// matchingMeta returns the chunk metadata written alongside the vectors of
// generation gen, renaming a pending chunks.meta.tmp into place when that is
// where it lives.
func (s *FlatStore) matchingMeta(metaPath string, exists bool, gen [16]byte) (*chunksMeta, error) {
	var cause error
	if exists {
		meta, err := readMeta(metaPath)
		if err == nil && meta.Generation == gen {
			return meta, nil
		}
		cause = err
		if cause == nil {
			cause = errors.New("vectors and chunk metadata come from different commits")
		}
	} else {
		cause = errors.New("chunk metadata file is missing")
	}

	pending, err := readMeta(metaPath + ".tmp")
	if err != nil || pending.Generation != gen {
		return nil, cause
	}
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		return nil, fmt.Errorf("complete interrupted commit: %w", err)
	}
	syncDir(s.dir)
	slog.Warn("flat_store_commit_completed",
		slog.String("dir", s.dir),
		slog.String("generation", uuid.UUID(gen).String()))
	return pending, nil
}

func corruptSnapshot(dir string, cause error) error {
	return docerrors.New(docerrors.ErrCodeCorruptIndex, "vector store snapshot is corrupt", cause).
		WithDetail("dir", dir).
		WithSuggestion("Delete the vector store directory and run index_documents with reindex=true")
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

// writeTemp writes path+".tmp" through a buffer and syncs it. The caller
// renames it into place.
func writeTemp(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// syncDir makes completed renames durable. Failures are logged only; some
// filesystems do not support syncing a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	if err := d.Sync(); err != nil {
		slog.Debug("directory sync failed", slog.String("dir", dir), slog.String("error", err.Error()))
	}
	_ = d.Close()
}

func writeVectors(w io.Writer, dims int, gen [16]byte, records []Record) error {
	hdr := vectorsHeader{
		Magic:      vectorsMagic,
		Version:    snapshotVersion,
		Dims:       uint32(dims),
		Count:      uint64(len(records)),
		Generation: gen,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for i := range records {
		if err := binary.Write(w, binary.LittleEndian, records[i].Embedding); err != nil {
			return err
		}
	}
	return nil
}

func readVectors(path string, dims int) (vectorsHeader, []float32, error) {
	var hdr vectorsHeader
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return hdr, nil, err
	}

	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != vectorsMagic {
		return hdr, nil, errors.New("bad magic in vectors file")
	}
	if hdr.Version != snapshotVersion {
		return hdr, nil, fmt.Errorf("unsupported vectors file version %d", hdr.Version)
	}
	if int(hdr.Dims) != dims {
		return hdr, nil, docerrors.DimensionMismatch(dims, int(hdr.Dims))
	}
	body := uint64(info.Size() - int64(binary.Size(hdr)))
	if hdr.Count > body/uint64(dims*4) {
		return hdr, nil, fmt.Errorf("vectors file too short for %d rows", hdr.Count)
	}

	matrix := make([]float32, int(hdr.Count)*dims)
	if err := binary.Read(r, binary.LittleEndian, matrix); err != nil {
		return hdr, nil, fmt.Errorf("read matrix: %w", err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return hdr, nil, errors.New("trailing data in vectors file")
	}
	return hdr, matrix, nil
}

func readMeta(path string) (*chunksMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var meta chunksMeta
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode chunk metadata: %w", err)
	}
	if meta.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported chunk metadata version %d", meta.Version)
	}
	return &meta, nil
}
