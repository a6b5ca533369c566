package target

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
)

// #region helpers
// pdbLines renders CA atoms for a chain, one residue per letter.
func pdbLines(chain string, seq string) string {
	one := map[byte]string{}
	for k, v := range threeToOne {
		if k != "MSE" && k != "SEC" && k != "PYL" {
			one[v] = k
		}
	}
	var b strings.Builder
	for i := 0; i < len(seq); i++ {
		fmt.Fprintf(&b, "ATOM  %5d  CA  %3s %s%4d    %8.3f%8.3f%8.3f  1.00  0.00           C\n",
			i+1, one[seq[i]], chain, i+1, 0.0, 0.0, 0.0)
	}
	return b.String()
}

func writePDB(t *testing.T, path string, chains map[string]string, order []string) {
	t.Helper()
	var b strings.Builder
	for _, ch := range order {
		b.WriteString(pdbLines(ch, chains[ch]))
		b.WriteString("TER\n")
	}
	b.WriteString("END\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write pdb: %v", err)
	}
}

// #endregion helpers

func TestChainSequences(t *testing.T) {
	pdb := pdbLines("A", "MKTAY") + pdbLines("B", "GSW") + "ENDMDL\n" + pdbLines("C", "AAA")
	seqs, order, err := ChainSequences(strings.NewReader(pdb))
	if err != nil {
		t.Fatalf("ChainSequences: %v", err)
	}
	if seqs["A"] != "MKTAY" || seqs["B"] != "GSW" {
		t.Fatalf("unexpected sequences %v", seqs)
	}
	if _, ok := seqs["C"]; ok {
		t.Fatal("chains after ENDMDL must be ignored")
	}
	if len(order) != 2 || order[0] != "A" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestCDRPositions(t *testing.T) {
	pos, err := CDRPositions([]int{2, 1}, []int{3, 2, 1})
	if err != nil {
		t.Fatalf("CDRPositions: %v", err)
	}
	want := []int{3, 4, 7}
	if fmt.Sprint(pos) != fmt.Sprint(want) {
		t.Fatalf("got %v want %v", pos, want)
	}
	if BinderLength([]int{2, 1}, []int{3, 2, 1}) != 9 {
		t.Fatal("unexpected binder length")
	}
	if _, err := CDRPositions([]int{2, 1}, []int{3}); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestStartingComplexName(t *testing.T) {
	if got := StartingComplexName("pdl1", []int{11, 8, 18}, binder.ModalityVHH); got != "pdl1_11_8_18_nb.pdb" {
		t.Fatalf("got %s", got)
	}
	if got := StartingComplexName("pdl1", []int{11}, binder.ModalitySCFV); got != "pdl1_11_scfv.pdb" {
		t.Fatalf("got %s", got)
	}
}

func TestRemapHotspots(t *testing.T) {
	seqs := map[string]string{"A": strings.Repeat("G", 100), "B": strings.Repeat("G", 40), "C": "GG"}
	order := []string{"A", "B", "C"}
	got := RemapHotspots("A10, B5,C1-2,7,B3-B4,Bx, ", order, seqs)
	// B offset = 100+50, C offset = 150+40+50
	want := "A10,A155,A241-A242,A7,A153-A154,Bx"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLoadMultiChainTarget(t *testing.T) {
	dir := t.TempDir()
	targetPDB := filepath.Join(dir, "antigen.pdb")
	writePDB(t, targetPDB, map[string]string{"A": "MKTAYIAK", "C": "GSWE"}, []string{"A", "C"})

	cfg := config.Default()
	cfg.PDBDir = dir
	cfg.CDRLengths = []int{2}
	cfg.FWLengths = []int{3, 2}
	cfg.Target = config.TargetConfig{
		Name:             "antigenX",
		PDBPath:          targetPDB,
		Chain:            config.ChainList{"A", "C"},
		BinderChain:      "B",
		Hotspots:         "C2",
		StartingSequence: "qvqlvsa",
	}
	if err := config.Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	tgt, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tgt.Chain != "A" || tgt.Sequence != "MKTAYIAKGSWE" {
		t.Fatalf("unexpected target %+v", tgt)
	}
	if tgt.Hotspots != "A60" {
		t.Fatalf("hotspots = %s", tgt.Hotspots)
	}
	if tgt.StartingSequence != "QVQLVSA" {
		t.Fatalf("starting sequence = %s", tgt.StartingSequence)
	}
	if fmt.Sprint(tgt.CDRPositions) != "[3 4]" {
		t.Fatalf("cdr positions = %v", tgt.CDRPositions)
	}
}

func TestLoadPrefersStartingComplex(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PDBDir = dir
	cfg.CDRLengths = []int{1}
	cfg.FWLengths = []int{1, 1}
	cfg.Target = config.TargetConfig{Name: "t", Chain: config.ChainList{"A"}, BinderChain: "B", StartingSequence: "AAA"}
	config.Normalize(&cfg)

	complexPath := filepath.Join(dir, StartingComplexName("t", cfg.CDRLengths, cfg.Modality))
	writePDB(t, complexPath, map[string]string{"A": "MK", "B": "EVQ"}, []string{"A", "B"})

	tgt, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tgt.StartingSequence != "EVQ" {
		t.Fatalf("expected binder chain from complex, got %s", tgt.StartingSequence)
	}
}

func TestLoadNoStartingBinder(t *testing.T) {
	cfg := config.Default()
	cfg.PDBDir = t.TempDir()
	cfg.Target = config.TargetConfig{Name: "t", Chain: config.ChainList{"A"}, BinderChain: "B"}
	config.Normalize(&cfg)
	if _, err := Load(cfg); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadCDRBeyondSequence(t *testing.T) {
	cfg := config.Default()
	cfg.PDBDir = t.TempDir()
	cfg.CDRLengths = []int{5}
	cfg.FWLengths = []int{5, 5}
	cfg.Target = config.TargetConfig{Name: "t", Chain: config.ChainList{"A"}, BinderChain: "B", StartingSequence: "AAAAAA"}
	config.Normalize(&cfg)
	if _, err := Load(cfg); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
