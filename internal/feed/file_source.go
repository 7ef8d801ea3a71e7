package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/pkg/logger"
)

// FileSource reads the history layout:
//
//	{dir}/history/limit_up/{date}.json
//	{dir}/history/limit_down/{date}.json   (optional)
//	{dir}/history/explode/{date}.json      (optional)
//	{dir}/kline_optimized/kline_data.json  (optional)
type FileSource struct {
	dir string
	*assembler
}

// NewFileSource creates a file source. klines may be nil (no bars:
// positions keep their last price and pending entries cannot fill).
func NewFileSource(dir string, klines *KlineStore, log *logger.Logger) *FileSource {
	s := &FileSource{dir: dir}
	s.assembler = newAssembler(s, klines, log)
	return s
}

// OpenFileSource loads the K-line file when present and creates the source
func OpenFileSource(dir, klineFile string, log *logger.Logger) (*FileSource, error) {
	if log == nil {
		log = logger.Nop()
	}
	var klines *KlineStore
	if klineFile != "" {
		store, err := LoadKlineFile(klineFile)
		switch {
		case err == nil:
			klines = store
			log.WithFields(map[string]interface{}{
				"file":  klineFile,
				"codes": store.Codes(),
			}).Info("K-line data loaded")
		case errors.Is(err, fs.ErrNotExist):
			log.WithField("file", klineFile).Warn("K-line file missing, running without bars")
		default:
			return nil, err
		}
	}
	return NewFileSource(dir, klines, log), nil
}

// Load implements Source
func (s *FileSource) Load(ctx context.Context, date time.Time) (*contracts.DailyBatch, error) {
	return s.load(ctx, date)
}

// PoolPath returns the file path of a pool for date
func (s *FileSource) PoolPath(kind PoolKind, date time.Time) string {
	return PoolPath(s.dir, kind, date)
}

// PoolPath returns {dir}/history/{kind}/{date}.json
func PoolPath(dir string, kind PoolKind, date time.Time) string {
	return filepath.Join(dir, "history", string(kind), dateString(date)+".json")
}

func (s *FileSource) readPool(_ context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error) {
	body, err := os.ReadFile(s.PoolPath(kind, date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", describe(kind, date), err)
	}

	records, err := ParsePool(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", describe(kind, date), err)
	}
	return records, nil
}

// AvailableDates lists dates with a limit-up pool file, ascending
func (s *FileSource) AvailableDates() ([]time.Time, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "history", string(PoolLimitUp)))
	if err != nil {
		return nil, fmt.Errorf("list pool files: %w", err)
	}
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		d, err := contracts.ParseDate(e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// WritePool saves records in the history layout under dir
func WritePool(dir string, kind PoolKind, date time.Time, records []PoolRecord) (string, error) {
	path := PoolPath(dir, kind, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create pool dir: %w", err)
	}
	body, err := EncodePool(date, records)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", describe(kind, date), err)
	}
	return path, nil
}
