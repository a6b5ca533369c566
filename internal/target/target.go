package target

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
)

const aminoAcids = "ACDEFGHIKLMNPQRSTVWY"

// Load prepares the read-only Target for a run: target chain sequences,
// multi-chain concatenation, hotspot remapping, the starting binder sequence
// and the mutable CDR positions.
func Load(cfg config.RunConfig) (*binder.Target, error) {
	tc := cfg.Target
	t := &binder.Target{
		Name:        tc.Name,
		PDBPath:     tc.PDBPath,
		Chain:       tc.Chain[0],
		SourceChain: append([]string(nil), tc.Chain...),
		Hotspots:    tc.Hotspots,
		BinderChain: tc.BinderChain,
	}

	if tc.PDBPath != "" {
		seqs, err := ReadChainSequences(tc.PDBPath)
		if err != nil {
			return nil, binder.Configurationf("target pdb: %v", err)
		}
		var parts []string
		for _, ch := range tc.Chain {
			s, ok := seqs[ch]
			if !ok {
				return nil, binder.Configurationf("target pdb %s has no chain %s", tc.PDBPath, ch)
			}
			parts = append(parts, s)
		}
		t.Sequence = strings.Join(parts, "")
		if tc.Chain.Multi() {
			t.Chain = "A"
			t.Hotspots = RemapHotspots(tc.Hotspots, tc.Chain, seqs)
			log.Printf("[TARGET] concatenated chains %s into A, hotspots %q -> %q", tc.Chain, tc.Hotspots, t.Hotspots)
		}
	}

	positions, err := CDRPositions(cfg.CDRLengths, cfg.FWLengths)
	if err != nil {
		return nil, err
	}
	t.CDRPositions = positions

	t.StartingComplex = filepath.Join(cfg.PDBDir, StartingComplexName(tc.Name, cfg.CDRLengths, cfg.Modality))
	seq, source, err := startingSequence(cfg, t.StartingComplex)
	if err != nil {
		return nil, err
	}
	if err := checkSequence(seq); err != nil {
		return nil, binder.Configurationf("starting sequence from %s: %v", source, err)
	}
	if n := len(positions); n > 0 && positions[n-1] >= len(seq) {
		return nil, binder.Configurationf("CDR position %d outside starting sequence of length %d", positions[n-1], len(seq))
	}
	t.StartingSequence = seq
	log.Printf("[TARGET] %s: %d target residues, binder %d residues from %s, %d CDR positions",
		t.Name, len(t.Sequence), len(seq), source, len(positions))
	return t, nil
}

// startingSequence prefers the starting complex, then the modality template,
// then the configured sequence.
func startingSequence(cfg config.RunConfig, complexPath string) (string, string, error) {
	chain := cfg.Target.BinderChain
	template := filepath.Join(cfg.PDBDir, cfg.Modality.FileTag()+".pdb")
	for _, path := range []string{complexPath, template} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		seqs, err := ReadChainSequences(path)
		if err != nil {
			return "", "", err
		}
		if s, ok := seqs[chain]; ok && s != "" {
			return s, path, nil
		}
		return "", "", binder.Configurationf("%s has no binder chain %s", path, chain)
	}
	if s := strings.ToUpper(strings.TrimSpace(cfg.Target.StartingSequence)); s != "" {
		return s, "target.starting_sequence", nil
	}
	return "", "", binder.Configurationf("no starting binder: %s and %s missing and target.starting_sequence empty", complexPath, template)
}

func checkSequence(seq string) error {
	if seq == "" {
		return fmt.Errorf("empty sequence")
	}
	for i, r := range seq {
		if !strings.ContainsRune(aminoAcids, r) {
			return fmt.Errorf("residue %d %q is not a standard amino acid", i+1, r)
		}
	}
	return nil
}
