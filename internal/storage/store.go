package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

const (
	metadataFile  = "metadata.json"
	residualsFile = "residuals.csv"
)

// Store keeps one directory per run under baseDir.
type Store struct {
	baseDir string
	logger  *log.Logger
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, logger: log.Default(), now: time.Now}
}

func (s *Store) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID          string             `json:"id"`
	Scene       string             `json:"scene"`
	Strategy    string             `json:"strategy"`
	Chebyshev   bool               `json:"chebyshev"`
	Rho         float64            `json:"rho,omitempty"`
	Relaxation  float64            `json:"relaxation,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Dt          float64            `json:"dt"`
	Steps       int                `json:"steps"`
	Iterations  int                `json:"iterations"`
	Particles   int                `json:"particles"`
	Constraints int                `json:"constraints"`
	Workers     int                `json:"workers"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Save writes metadata.json and residuals.csv into a fresh run directory and
// returns the run ID. ID and Timestamp in meta are filled in.
func (s *Store) Save(meta RunMetadata, residuals [][]float64) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}

	meta.Timestamp = s.now()
	runID, runDir, err := s.createRunDir(meta)
	if err != nil {
		return "", err
	}
	meta.ID = runID

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeResidualCSV(filepath.Join(runDir, residualsFile), residuals); err != nil {
		return "", err
	}

	s.logger.Debug("run saved", "id", runID, "dir", runDir)
	return runID, nil
}

// createRunDir picks <scene>_<strategy>_<unix millis>, adding a counter when
// concurrent runs land on the same millisecond.
func (s *Store) createRunDir(meta RunMetadata) (string, string, error) {
	strategy := meta.Strategy
	if meta.Chebyshev {
		strategy += "_chebyshev"
	}
	base := fmt.Sprintf("%s_%s_%d", meta.Scene, strategy, meta.Timestamp.UnixMilli())
	for n := 0; ; n++ {
		id := base
		if n > 0 {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		dir := filepath.Join(s.baseDir, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", err
		}
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResidualCSV(path string, residuals [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"step", "iteration", "residual"}); err != nil {
		return err
	}
	for step, series := range residuals {
		for k, r := range series {
			row := []string{
				strconv.Itoa(step + 1),
				strconv.Itoa(k),
				strconv.FormatFloat(r, 'g', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every stored run, oldest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			s.logger.Debug("skipping run directory", "dir", entry.Name(), "err", err)
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadResiduals reads residuals.csv back into one series per step.
func (s *Store) LoadResiduals(runID string) ([][]float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, residualsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 3

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if len(records) < 2 {
		return [][]float64{}, nil
	}

	series := make([][]float64, 0)
	for i, record := range records[1:] {
		step, err := strconv.Atoi(record[0])
		if err != nil || step < 1 {
			return nil, fmt.Errorf("run %s line %d: bad step %q", runID, i+2, record[0])
		}
		v, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("run %s line %d: %w", runID, i+2, err)
		}
		for len(series) < step {
			series = append(series, nil)
		}
		series[step-1] = append(series[step-1], v)
	}
	return series, nil
}
