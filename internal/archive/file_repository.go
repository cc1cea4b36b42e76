package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// fileNamePattern matches station_<id>_<yyyyMMdd_HHmmss>.json.
var fileNamePattern = regexp.MustCompile(`^station_(\d+)_(\d{8}_\d{6})\.json$`)

const fileTimeLayout = "20060102_150405"

// FileRepository stores one JSON document per record in a directory.
type FileRepository struct {
	dir    string
	logger zerolog.Logger

	// serializes writers; readers never observe partial files because
	// records are published with a hard link.
	mu sync.Mutex
}

// NewFileRepository creates a repository rooted at dir. The directory is
// created on first write.
func NewFileRepository(dir string, logger zerolog.Logger) *FileRepository {
	return &FileRepository{dir: dir, logger: logger}
}

// Dir returns the archive directory.
func (r *FileRepository) Dir() string {
	return r.dir
}

// FileName returns the file name used for a record.
func FileName(stationID int, saveDate string) (string, error) {
	t, err := time.Parse(SaveDateLayout, saveDate)
	if err != nil {
		return "", fmt.Errorf("invalid save date %q: %w", saveDate, err)
	}
	return fmt.Sprintf("station_%d_%s.json", stationID, t.UTC().Format(fileTimeLayout)), nil
}

// Create writes rec to its own file. An existing file is never replaced.
func (r *FileRepository) Create(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := FileName(rec.StationID, rec.SaveDate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrPersistence, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create archive dir: %v", ErrPersistence, err)
	}

	final := filepath.Join(r.dir, name)
	if _, err := os.Stat(final); err == nil {
		return ErrRecordExists
	}

	tmp, err := os.CreateTemp(r.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write record: %v", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync record: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close record: %v", ErrPersistence, err)
	}

	// Link fails if final already exists, so a concurrent writer from
	// another process cannot be overwritten.
	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrRecordExists
		}
		return fmt.Errorf("%w: publish record: %v", ErrPersistence, err)
	}

	r.logger.Info().
		Int("station_id", rec.StationID).
		Str("save_date", rec.SaveDate).
		Str("file", final).
		Msg("archive record written")

	return nil
}

// List returns summaries of every parseable record file.
func (r *FileRepository) List(ctx context.Context) ([]Summary, error) {
	entries, err := r.entries()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.readFile(e.name)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", e.name).Msg("skipping unreadable archive record")
			continue
		}
		out = append(out, rec.Summary())
	}

	sortSummaries(out)
	return out, nil
}

// Get scans the files of stationID for the record saved at saveDate.
func (r *FileRepository) Get(ctx context.Context, stationID int, saveDate string) (*Record, error) {
	entries, err := r.entries()
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.stationID != stationID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.readFile(e.name)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", e.name).Msg("skipping unreadable archive record")
			continue
		}
		if rec.StationID == stationID && rec.SaveDate == saveDate {
			return rec, nil
		}
	}

	return nil, ErrRecordNotFound
}

type fileEntry struct {
	name      string
	stationID int
}

func (r *FileRepository) entries() ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read archive dir: %v", ErrPersistence, err)
	}

	out := make([]fileEntry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(d.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, fileEntry{name: d.Name(), stationID: id})
	}
	return out, nil
}

func (r *FileRepository) readFile(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if rec.StationID == 0 || rec.SaveDate == "" {
		return nil, fmt.Errorf("decode %s: missing stationId or saveDate", name)
	}
	if rec.Sensors == nil {
		rec.Sensors = []SensorRecord{}
	}
	return &rec, nil
}
