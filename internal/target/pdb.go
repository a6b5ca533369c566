package target

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

var threeToOne = map[string]byte{
	"ALA": 'A', "ARG": 'R', "ASN": 'N', "ASP": 'D', "CYS": 'C',
	"GLN": 'Q', "GLU": 'E', "GLY": 'G', "HIS": 'H', "ILE": 'I',
	"LEU": 'L', "LYS": 'K', "MET": 'M', "PHE": 'F', "PRO": 'P',
	"SER": 'S', "THR": 'T', "TRP": 'W', "TYR": 'Y', "VAL": 'V',
	"MSE": 'M', "SEC": 'U', "PYL": 'O',
}

// ChainSequences reads one-letter sequences per chain from the CA atoms of the
// first model. Chains are also returned in file order.
func ChainSequences(r io.Reader) (map[string]string, []string, error) {
	type resKey struct {
		chain string
		seq   string
	}
	seqs := make(map[string]*strings.Builder)
	var order []string
	seen := make(map[resKey]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ENDMDL") {
			break
		}
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 27 {
			continue
		}
		if strings.TrimSpace(line[12:16]) != "CA" {
			continue
		}
		if alt := line[16]; alt != ' ' && alt != 'A' {
			continue
		}
		aa, ok := threeToOne[strings.TrimSpace(line[17:20])]
		if !ok {
			continue
		}
		chain := string(line[21])
		key := resKey{chain: chain, seq: line[22:27]}
		if seen[key] {
			continue
		}
		seen[key] = true
		b, ok := seqs[chain]
		if !ok {
			b = &strings.Builder{}
			seqs[chain] = b
			order = append(order, chain)
		}
		b.WriteByte(aa)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan pdb: %w", err)
	}

	out := make(map[string]string, len(seqs))
	for k, b := range seqs {
		out[k] = b.String()
	}
	return out, order, nil
}

// ReadChainSequences opens a PDB file and returns its chain sequences.
func ReadChainSequences(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdb %s: %w", path, err)
	}
	defer f.Close()
	seqs, _, err := ChainSequences(f)
	if err != nil {
		return nil, fmt.Errorf("read pdb %s: %w", path, err)
	}
	return seqs, nil
}
