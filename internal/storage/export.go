package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	RunMetadata
	Residuals [][]float64 `json:"residuals"`
}

// ExportJSON writes a run's metadata and every residual series as one JSON
// document.
func ExportJSON(w io.Writer, meta RunMetadata, residuals [][]float64) error {
	data := ExportData{RunMetadata: meta, Residuals: residuals}
	if data.Residuals == nil {
		data.Residuals = [][]float64{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
