package target

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// ChainGap is the residue-numbering gap inserted between concatenated target chains.
const ChainGap = 50

// #region cdr
// CDRPositions returns the 0-based binder positions of every CDR residue for a
// layout FW1 CDR1 FW2 CDR2 ... [FWn+1]. fwLengths has len(cdrLengths) or
// len(cdrLengths)+1 entries.
func CDRPositions(cdrLengths, fwLengths []int) ([]int, error) {
	if len(fwLengths) != len(cdrLengths) && len(fwLengths) != len(cdrLengths)+1 {
		return nil, binder.Configurationf("%d framework lengths for %d CDRs", len(fwLengths), len(cdrLengths))
	}
	var positions []int
	pos := 0
	for i, cdr := range cdrLengths {
		if fwLengths[i] < 0 || cdr < 0 {
			return nil, binder.Configurationf("negative region length")
		}
		pos += fwLengths[i]
		for j := 0; j < cdr; j++ {
			positions = append(positions, pos+j)
		}
		pos += cdr
	}
	return positions, nil
}

// BinderLength is the total residue count the region layout implies.
func BinderLength(cdrLengths, fwLengths []int) int {
	n := 0
	for _, v := range cdrLengths {
		n += v
	}
	for _, v := range fwLengths {
		n += v
	}
	return n
}

// #endregion cdr

// #region complex-name
// StartingComplexName is "<target>_<cdr lengths joined by _>_<nb|scfv>.pdb".
func StartingComplexName(targetName string, cdrLengths []int, m binder.Modality) string {
	parts := make([]string, len(cdrLengths))
	for i, v := range cdrLengths {
		parts[i] = strconv.Itoa(v)
	}
	return fmt.Sprintf("%s_%s_%s.pdb", targetName, strings.Join(parts, "_"), m.FileTag())
}

// #endregion complex-name

// #region hotspots
// ChainOffsets gives the numbering offset of each chain once the chains are
// concatenated in order with ChainGap residues between them.
func ChainOffsets(order []string, seqs map[string]string) map[string]int {
	offsets := make(map[string]int, len(order))
	running := 0
	for i, ch := range order {
		if i > 0 {
			running += ChainGap
		}
		offsets[ch] = running
		running += len(seqs[ch])
	}
	return offsets
}

// RemapHotspots rewrites hotspot tokens ("B12", "A3-9", "A3-A9", "7") onto the
// concatenated chain A. Tokens without a chain use the first chain; tokens that
// do not parse are kept verbatim.
func RemapHotspots(hotspots string, order []string, seqs map[string]string) string {
	if strings.TrimSpace(hotspots) == "" || len(order) == 0 {
		return hotspots
	}
	offsets := ChainOffsets(order, seqs)

	var out []string
	for _, raw := range strings.Split(hotspots, ",") {
		if tok := remapToken(strings.TrimSpace(raw), order[0], offsets); tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, ",")
}

func remapToken(tok, defaultChain string, offsets map[string]int) string {
	if tok == "" {
		return ""
	}
	ch, rest := defaultChain, tok
	if unicode.IsLetter(rune(tok[0])) {
		ch, rest = tok[:1], tok[1:]
	}
	off := offsets[ch]

	if start, end, ok := strings.Cut(rest, "-"); ok {
		end = strings.TrimPrefix(end, ch)
		s, err1 := strconv.Atoi(start)
		e, err2 := strconv.Atoi(end)
		if err1 != nil || err2 != nil {
			return tok
		}
		return fmt.Sprintf("A%d-A%d", off+s, off+e)
	}
	r, err := strconv.Atoi(rest)
	if err != nil {
		return tok
	}
	return fmt.Sprintf("A%d", off+r)
}

// #endregion hotspots
