package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/completion"
	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Sentinel errors for checkpoint loading and validation.
var (
	ErrUnreadable          = errors.New("checkpoint record unreadable")
	ErrFingerprintMismatch = errors.New("checkpoint fingerprint mismatch")
)

// recordMagic tags worker record files.
const recordMagic = "HSCK"

// recordExtension is the file extension of worker records.
const recordExtension = ".ckpt"

// MaxWorkers bounds the worker count a record may declare. Larger values are
// treated as corruption.
const MaxWorkers = 1 << 16

// Fingerprint computes a short hash of everything that determines oracle
// output, so records from a differently configured run are never merged.
func Fingerprint(parts ...any) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint: %w", err)
	}

	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:8]), nil // First 8 bytes = 16 hex chars.
}

// Store reads and writes worker records under Dir, one file per worker.
type Store struct {
	Dir       string
	logger    *slog.Logger
	persister *persist.Persister[Record]
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	codec := persist.NewEnvelopeCodec(recordMagic, RecordVersion, recordExtension,
		persist.NewLZ4Codec(persist.NewGobCodec()))

	return &Store{
		Dir:       dir,
		logger:    logger,
		persister: persist.NewPersister[Record](codec),
	}
}

// RecordPath returns the file holding worker's record.
func (s *Store) RecordPath(worker int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("worker-%04d%s", worker, recordExtension))
}

// MetadataPath returns the path to the run metadata file.
func (s *Store) MetadataPath() string {
	return filepath.Join(s.Dir, "checkpoint.json")
}

// Exists reports whether any worker record is present.
func (s *Store) Exists() bool {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "worker-*"+recordExtension))

	return err == nil && len(matches) > 0
}

// Clear removes every record and the metadata.
func (s *Store) Clear() error {
	_, statErr := os.Stat(s.Dir)
	if errors.Is(statErr, fs.ErrNotExist) {
		return nil
	}

	err := os.RemoveAll(s.Dir)
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}

// Save atomically replaces the record of rec.WorkerID and returns the size of
// the written file. A crash during Save leaves the previous record intact.
func (s *Store) Save(ctx context.Context, rec *Record) (int64, error) {
	err := ctx.Err()
	if err != nil {
		return 0, err
	}

	path := s.RecordPath(rec.WorkerID)

	err = s.persister.Save(path, rec)
	if err != nil {
		return 0, fmt.Errorf("save worker %d: %w", rec.WorkerID, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat worker %d: %w", rec.WorkerID, err)
	}

	return info.Size(), nil
}

// Load reads the record of one worker.
func (s *Store) Load(worker int) (*Record, error) {
	rec, err := s.persister.Load(s.RecordPath(worker))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: worker %d: %w", ErrUnreadable, worker, err)
	}

	return rec, nil
}

// WriteMetadata stores run metadata next to the records.
func (s *Store) WriteMetadata(meta Metadata) error {
	if meta.Version == 0 {
		meta.Version = MetadataVersion
	}

	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	err := persist.SaveFile(s.MetadataPath(), persist.NewJSONCodec(), meta)
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

// LoadMetadata loads the run metadata.
func (s *Store) LoadMetadata() (*Metadata, error) {
	var meta Metadata

	err := persist.LoadFile(s.MetadataPath(), persist.NewJSONCodec(), &meta)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	return &meta, nil
}

// Validate checks that the stored metadata was written for fingerprint.
func (s *Store) Validate(fingerprint string) error {
	meta, err := s.LoadMetadata()
	if err != nil {
		return err
	}

	if meta.Fingerprint != fingerprint {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrFingerprintMismatch, meta.Fingerprint, fingerprint)
	}

	return nil
}

// LoadRequest parameterises LoadAll.
type LoadRequest struct {
	// MaxExpectedWorkers is the number of records to scan at least.
	MaxExpectedWorkers int
	// Shape is the tensor shape of the current run.
	Shape tensor.Shape
	// Fingerprint, when set, must match every record.
	Fingerprint string
	// Clean discards prior progress.
	Clean bool
}

// Skipped describes a record excluded from a resume.
type Skipped struct {
	Worker int
	Err    error
}

// Resume is the merged state of every usable record.
type Resume struct {
	Done    *completion.Set
	Tensor  *tensor.Tensor
	Loaded  []int
	Missing []int
	Skipped []Skipped
	// DeclaredWorkers is the largest worker count declared by a usable record.
	DeclaredWorkers int
}

// LoadAll merges every usable record into one completion set and tensor.
//
// Records are scanned from worker 0 upwards. The number of records to scan is
// the largest of req.MaxExpectedWorkers, the highest record file present in
// the directory and every worker count declared by a usable record, so a lost
// record 0 does not hide the others. Missing and
// unusable records are skipped and reported, never returned as errors; their
// points are simply computed again.
func (s *Store) LoadAll(ctx context.Context, req LoadRequest) (*Resume, error) {
	t, err := tensor.New(req.Shape)
	if err != nil {
		return nil, err
	}

	res := &Resume{Done: completion.New(), Tensor: t}

	if req.Clean {
		return res, nil
	}

	expected := min(max(req.MaxExpectedWorkers, 1, s.recordsPresent()), MaxWorkers)

	for worker := 0; worker < expected; worker++ {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, ctxErr
		}

		rec, loadErr := s.Load(worker)
		if errors.Is(loadErr, fs.ErrNotExist) {
			res.Missing = append(res.Missing, worker)

			continue
		}

		if loadErr == nil {
			loadErr = s.check(rec, worker, req)
		}

		if loadErr == nil {
			loadErr = res.Tensor.Unpack(rec.Done, rec.Partial)
			if loadErr != nil {
				loadErr = fmt.Errorf("%w: worker %d: %w", ErrUnreadable, worker, loadErr)
			}
		}

		if loadErr != nil {
			s.logger.WarnContext(ctx, "skipping checkpoint record",
				"worker", worker, "path", s.RecordPath(worker), "error", loadErr)

			res.Skipped = append(res.Skipped, Skipped{Worker: worker, Err: loadErr})

			continue
		}

		res.Done.Add(rec.Done...)
		res.Loaded = append(res.Loaded, worker)
		res.DeclaredWorkers = max(res.DeclaredWorkers, rec.WorkerCount)
		expected = max(expected, rec.WorkerCount)
	}

	s.logger.DebugContext(ctx, "checkpoint records scanned",
		"loaded", len(res.Loaded), "missing", len(res.Missing), "skipped", len(res.Skipped),
		"done", res.Done.Len())

	return res, nil
}

// recordsPresent returns one past the highest worker index with a record file.
func (s *Store) recordsPresent() int {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "worker-*"+recordExtension))
	if err != nil {
		return 0
	}

	n := 0

	for _, path := range matches {
		var worker int

		_, scanErr := fmt.Sscanf(filepath.Base(path), "worker-%d"+recordExtension, &worker)
		if scanErr != nil || worker < 0 || worker >= MaxWorkers {
			continue
		}

		n = max(n, worker+1)
	}

	return n
}

func (s *Store) check(rec *Record, worker int, req LoadRequest) error {
	switch {
	case rec.WorkerID != worker:
		return fmt.Errorf("%w: worker %d file holds worker %d", ErrUnreadable, worker, rec.WorkerID)
	case rec.WorkerCount < 1 || rec.WorkerCount > MaxWorkers:
		return fmt.Errorf("%w: worker %d declares %d workers", ErrUnreadable, worker, rec.WorkerCount)
	case rec.Shape() != req.Shape:
		return fmt.Errorf("%w: worker %d shape %s, want %s", ErrUnreadable, worker, rec.Shape(), req.Shape)
	case req.Fingerprint != "" && rec.Fingerprint != req.Fingerprint:
		return fmt.Errorf("%w: worker %d: %w", ErrUnreadable, worker, ErrFingerprintMismatch)
	}

	return nil
}
