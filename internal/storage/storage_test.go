package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testMeta() RunMetadata {
	return RunMetadata{
		Scene:       "rod",
		Strategy:    "jacobi",
		Dt:          0.01,
		Steps:       2,
		Iterations:  3,
		Particles:   10,
		Constraints: 9,
		Metrics:     map[string]float64{"final_residual": 1.5e-6},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	residuals := [][]float64{{0.1, 0.05, 0.02}, {0.04, 0.01, 1.5e-6}}
	runID, err := st.Save(testMeta(), residuals)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != runID || meta.Scene != "rod" || meta.Strategy != "jacobi" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["final_residual"] != 1.5e-6 {
		t.Errorf("expected final_residual 1.5e-6, got %g", meta.Metrics["final_residual"])
	}

	loaded, err := st.LoadResiduals(runID)
	if err != nil {
		t.Fatalf("load residuals failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(loaded))
	}
	for s := range residuals {
		for k := range residuals[s] {
			if loaded[s][k] != residuals[s][k] {
				t.Errorf("step %d iteration %d: got %g, want %g", s, k, loaded[s][k], residuals[s][k])
			}
		}
	}
}

func TestStoreUniqueIDs(t *testing.T) {
	st := New(t.TempDir())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	meta := testMeta()
	meta.Chebyshev = true
	a, err := st.Save(meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Save(meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two runs share id %s", a)
	}
	want := "rod_jacobi_chebyshev_" + "1767323045000"
	if a != want {
		t.Errorf("id = %s, want %s", a, want)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("empty store: %v %v", runs, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := st.Save(testMeta(), [][]float64{{1}}); err != nil {
			t.Fatal(err)
		}
	}
	os.Mkdir(filepath.Join(dir, "junk"), 0755)

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}

	if _, err := New(filepath.Join(dir, "missing")).List(); err != nil {
		t.Errorf("missing base dir should list nothing, got %v", err)
	}
}

func TestResidualFileName(t *testing.T) {
	tests := []struct {
		strategy  string
		chebyshev bool
		want      string
	}{
		{"jacobi", false, "jacobi_dual_residual.txt"},
		{"jacobi", true, "jacobi_chebyshev_dual_residual.txt"},
		{"gauss-seidel", false, "gauss-seidel_dual_residual.txt"},
		{"schur-jacobi", true, "schur-jacobi_chebyshev_dual_residual.txt"},
	}
	for _, tt := range tests {
		if got := ResidualFileName(tt.strategy, tt.chebyshev); got != tt.want {
			t.Errorf("ResidualFileName(%q, %v) = %q, want %q", tt.strategy, tt.chebyshev, got, tt.want)
		}
	}
}

func TestResidualLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	l, err := CreateResidualLog(dir, "jacobi", true)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(l.Path()) != "jacobi_chebyshev_dual_residual.txt" {
		t.Errorf("path = %s", l.Path())
	}

	l.OnStep(1, []float64{0.5, 0.25})
	if err := l.Append(0.125); err != nil {
		t.Fatal(err)
	}
	l.OnStep(2, []float64{1e-9})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0.5\n0.25\n0.125\n1e-09\n" {
		t.Errorf("file contents %q", data)
	}

	values, err := ReadResiduals(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 4 || values[3] != 1e-9 {
		t.Errorf("read back %v", values)
	}
}

func TestResidualLogTruncatesOnCreate(t *testing.T) {
	dir := t.TempDir()
	l, _ := CreateResidualLog(dir, "gauss-seidel", false)
	l.Append(1, 2, 3)
	l.Close()

	l, err := CreateResidualLog(dir, "gauss-seidel", false)
	if err != nil {
		t.Fatal(err)
	}
	l.Append(4)
	l.Close()

	values, err := ReadResiduals(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != 4 {
		t.Errorf("expected a fresh file, got %v", values)
	}
}

func TestReadResidualsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	os.WriteFile(path, []byte("0.1\n\nnot-a-number\n"), 0644)
	if _, err := ReadResiduals(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	meta := testMeta()
	meta.ID = "rod_jacobi_1"
	if err := ExportJSON(&buf, meta, [][]float64{{0.3, 0.2}}); err != nil {
		t.Fatal(err)
	}

	var got struct {
		ID        string      `json:"id"`
		Scene     string      `json:"scene"`
		Residuals [][]float64 `json:"residuals"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "rod_jacobi_1" || got.Scene != "rod" || len(got.Residuals) != 1 || got.Residuals[0][1] != 0.2 {
		t.Errorf("exported %+v", got)
	}
}
