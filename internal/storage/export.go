package storage

import (
	"encoding/json"
	"io"
	"math"

	"github.com/san-kum/lqrsim/internal/sim"
)

type ExportData struct {
	ID       string             `json:"id,omitempty"`
	Model    string             `json:"model"`
	Method   string             `json:"method"`
	Status   sim.Status         `json:"status"`
	Steps    int                `json:"steps"`
	Times    []float64          `json:"times"`
	States   [][]float64        `json:"states"`
	Controls [][]float64        `json:"controls"`
	Refs     [][]float64        `json:"references,omitempty"`
	Metrics  map[string]float64 `json:"metrics"`
}

func NewExportData(meta *RunMetadata, result *sim.Result) ExportData {
	data := ExportData{
		ID:       meta.ID,
		Model:    meta.Model,
		Method:   result.Method,
		Status:   result.Status,
		Steps:    result.Len(),
		Times:    result.Times(),
		States:   make([][]float64, result.Len()),
		Controls: make([][]float64, result.Len()),
		Metrics:  finiteMetrics(result.Metrics),
	}
	for i, s := range result.Samples {
		data.States[i] = s.X
		data.Controls[i] = s.U
		if s.Ref != nil {
			if data.Refs == nil {
				data.Refs = make([][]float64, result.Len())
			}
			data.Refs[i] = s.Ref
		}
	}
	return data
}

func ExportJSON(w io.Writer, meta *RunMetadata, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, result))
}

func isNaNOrInf(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
