package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/integrators"
	"github.com/san-kum/lqrsim/internal/sim"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
	updatesFile    = "updates.csv"
)

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Preset     string             `json:"preset,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Method     string             `json:"method"`
	Options    dynamo.Options     `json:"options"`
	Status     sim.Status         `json:"status"`
	Error      string             `json:"error,omitempty"`
	Stats      integrators.Stats  `json:"stats"`
	Metrics    map[string]float64 `json:"metrics"`
	StateDim   int                `json:"state_dim"`
	ControlDim int                `json:"control_dim"`
	SampleTime float64            `json:"sample_time,omitempty"`
	Gain       [][]float64        `json:"gain,omitempty"`
	Config     *config.Config     `json:"config,omitempty"`
}

// Save writes the run under a fresh directory and returns its ID. Fields
// of meta derived from the result are filled in here.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	runID, runDir, err := s.newRunDir(meta.Model)
	if err != nil {
		return "", err
	}

	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Method = result.Method
	meta.Status = result.Status
	meta.Stats = result.Stats
	meta.Metrics = finiteMetrics(result.Metrics)
	meta.SampleTime = result.SampleTime
	if result.Err != nil {
		meta.Error = result.Err.Error()
	}
	if len(result.Samples) > 0 {
		meta.StateDim = len(result.Samples[0].X)
		meta.ControlDim = len(result.Samples[0].U)
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	if err := writeSamples(filepath.Join(runDir, trajectoryFile), result.Samples); err != nil {
		return "", err
	}
	if len(result.Updates) > 0 {
		if err := writeSamples(filepath.Join(runDir, updatesFile), result.Updates); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func writeSamples(path string, samples []sim.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteCSV(f, samples); err != nil {
		return err
	}
	return f.Close()
}

func readSamples(path string, stateDim, controlDim int) ([]sim.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, stateDim, controlDim)
}

func (s *Store) newRunDir(model string) (string, string, error) {
	if err := s.Init(); err != nil {
		return "", "", err
	}
	base := fmt.Sprintf("%s_%s", model, time.Now().Format("20060102-150405"))
	for i := 0; ; i++ {
		runID := base
		if i > 0 {
			runID = fmt.Sprintf("%s-%d", base, i)
		}
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if !os.IsExist(err) {
			return "", "", err
		}
	}
}

// finiteMetrics drops NaN and ±Inf, which encoding/json cannot encode.
func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !isNaNOrInf(v) {
			out[k] = v
		}
	}
	return out
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// List returns every readable run, newest first.
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
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].Timestamp.After(runs[j].Timestamp)
		}
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}

// LoadResult reads a stored run back into a Result. The error of a
// failed run is not reconstructed; its message stays in the metadata.
func (s *Store) LoadResult(runID string) (*RunMetadata, *sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}

	runDir := filepath.Join(s.baseDir, runID)
	samples, err := readSamples(filepath.Join(runDir, trajectoryFile), meta.StateDim, meta.ControlDim)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", runID, err)
	}
	var updates []sim.Sample
	if meta.SampleTime > 0 {
		updates, err = readSamples(filepath.Join(runDir, updatesFile), meta.StateDim, meta.ControlDim)
		if err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%s: %w", runID, err)
		}
	}
	return meta, &sim.Result{
		Samples:    samples,
		Status:     meta.Status,
		Stats:      meta.Stats,
		Metrics:    meta.Metrics,
		Method:     meta.Method,
		SampleTime: meta.SampleTime,
		Updates:    updates,
	}, nil
}

// WriteCSV writes one row per sample: time, state components, controls
// and, when the first sample carries one, the reference. Values use the
// shortest representation that parses back exactly.
func WriteCSV(out io.Writer, samples []sim.Sample) error {
	w := csv.NewWriter(out)

	if len(samples) == 0 {
		if err := w.Write([]string{"time"}); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	}

	header := []string{"time"}
	for i := range samples[0].X {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := range samples[0].U {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	withRef := len(samples[0].Ref) > 0
	if withRef {
		for i := range samples[0].Ref {
			header = append(header, fmt.Sprintf("r%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, smp := range samples {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatFloat(smp.T, 'g', -1, 64))
		for _, val := range smp.X {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		for _, val := range smp.U {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if withRef {
			for _, val := range smp.Ref {
				row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ReadCSV parses rows written by WriteCSV. After time come stateDim state
// columns and controlDim control columns; anything further is the
// reference.
func ReadCSV(in io.Reader, stateDim, controlDim int) ([]sim.Sample, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 1+stateDim+controlDim {
			return nil, fmt.Errorf("%w: row %d has %d columns", dynamo.ErrDimensionMismatch, i+1, len(record))
		}
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j, err)
			}
			vals[j] = v
		}
		smp := sim.Sample{
			T: vals[0],
			X: dynamo.State(vals[1 : 1+stateDim]),
			U: dynamo.Control(vals[1+stateDim : 1+stateDim+controlDim]),
		}
		if rest := vals[1+stateDim+controlDim:]; len(rest) > 0 {
			smp.Ref = dynamo.State(rest)
		}
		samples = append(samples, smp)
	}
	return samples, nil
}
