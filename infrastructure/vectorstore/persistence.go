package vectorstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/codescout/codescout/domain/vector"
)

const (
	vectorsDirName = "vectors"
	metaFileName   = "meta.json"
	matrixFileName = "embeddings"

	// metaSchemaVersion is bumped when the on-disk layout changes shape.
	metaSchemaVersion = 1

	// float32Size is the byte width of one matrix element.
	float32Size = 4
)

// metaFile is the JSON shape of meta.json. Dimension is null until the
// first insert establishes it.
type metaFile struct {
	Version   int             `json:"version"`
	Dimension *int            `json:"dimension"`
	Records   []vector.Record `json:"records"`
}

func (s *Store) metaPath() string {
	return filepath.Join(s.dir, metaFileName)
}

func (s *Store) matrixPath() string {
	return filepath.Join(s.dir, matrixFileName)
}

// load reads the metadata/matrix pair. A missing metadata file yields empty
// state. Any disagreement between the two files fails with
// vector.ErrStorageCorruption rather than guessing which side is
// authoritative.
func (s *Store) load() error {
	metaBytes, err := os.ReadFile(s.metaPath())
	if errors.Is(err, fs.ErrNotExist) {
		s.dimension = 0
		s.records = nil
		s.matrix = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	var meta metaFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("%w: malformed metadata: %v", vector.ErrStorageCorruption, err)
	}

	dim := 0
	if meta.Dimension != nil {
		dim = *meta.Dimension
	}
	if dim < 0 {
		return fmt.Errorf("%w: negative dimension %d", vector.ErrStorageCorruption, dim)
	}
	if len(meta.Records) > 0 && dim == 0 {
		return fmt.Errorf("%w: %d records but no dimension", vector.ErrStorageCorruption, len(meta.Records))
	}

	matrixBytes, err := os.ReadFile(s.matrixPath())
	if errors.Is(err, fs.ErrNotExist) {
		matrixBytes = nil
	} else if err != nil {
		return fmt.Errorf("read matrix: %w", err)
	}

	if len(matrixBytes) > 0 && dim == 0 {
		return fmt.Errorf("%w: matrix present but dimension unknown", vector.ErrStorageCorruption)
	}

	rowCount := 0
	if dim > 0 {
		rowBytes := dim * float32Size
		if len(matrixBytes)%rowBytes != 0 {
			return fmt.Errorf("%w: matrix size %d is not a whole number of %d-byte rows",
				vector.ErrStorageCorruption, len(matrixBytes), rowBytes)
		}
		rowCount = len(matrixBytes) / rowBytes
	}
	if rowCount != len(meta.Records) {
		return fmt.Errorf("%w: matrix has %d rows, metadata has %d records",
			vector.ErrStorageCorruption, rowCount, len(meta.Records))
	}

	s.dimension = dim
	s.records = meta.Records
	s.matrix = decodeMatrix(matrixBytes)
	return nil
}

// save writes the metadata/matrix pair. Each file is written to a temporary
// sibling and renamed into place, so a crash leaves either the old or the
// new version of a file, never a torn one. The two renames together are not
// transactional; a mismatched pair is caught by the next load.
func (s *Store) save(dimension int, records []vector.Record, matrix []float32) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create vectors dir: %w", err)
	}

	meta := metaFile{Version: metaSchemaVersion, Records: records}
	if meta.Records == nil {
		meta.Records = []vector.Record{}
	}
	if dimension > 0 {
		meta.Dimension = &dimension
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	metaBytes = append(metaBytes, '\n')

	if err := writeFileAtomic(s.metaPath(), metaBytes); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if len(matrix) == 0 {
		if err := removeIfExists(s.matrixPath()); err != nil {
			return fmt.Errorf("remove matrix: %w", err)
		}
		return nil
	}

	if err := writeFileAtomic(s.matrixPath(), encodeMatrix(matrix)); err != nil {
		return fmt.Errorf("write matrix: %w", err)
	}
	return nil
}

// encodeMatrix serializes rows as little-endian IEEE 754 float32.
func encodeMatrix(matrix []float32) []byte {
	buf := make([]byte, len(matrix)*float32Size)
	for i, v := range matrix {
		binary.LittleEndian.PutUint32(buf[i*float32Size:], math.Float32bits(v))
	}
	return buf
}

// decodeMatrix is the inverse of encodeMatrix. The caller has already
// verified that data is a whole number of elements.
func decodeMatrix(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	matrix := make([]float32, len(data)/float32Size)
	for i := range matrix {
		matrix[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*float32Size:]))
	}
	return matrix
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
