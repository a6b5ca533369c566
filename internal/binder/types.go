package binder

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// #region modality
// Modality is the binder architecture class.
type Modality string

const (
	ModalityVHH  Modality = "vhh"
	ModalitySCFV Modality = "scfv"
)

// ParseModality accepts "vhh", "nb", "nanobody" and "scfv" in any case.
func ParseModality(s string) (Modality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vhh", "nb", "nanobody":
		return ModalityVHH, nil
	case "scfv":
		return ModalitySCFV, nil
	}
	return "", Configurationf("unknown binder modality %q (want vhh or scfv)", s)
}

// FileTag is the short name used in template and starting-complex file names.
func (m Modality) FileTag() string {
	if m == ModalitySCFV {
		return "scfv"
	}
	return "nb"
}

// #endregion modality

// #region target
// Target is the immutable reference structure shared read-only by a run.
type Target struct {
	Name        string
	PDBPath     string
	Chain       string   // chain id the predictor sees (A after concatenation)
	SourceChain []string // chains as listed in the target config
	Hotspots    string   // remapped onto Chain numbering
	Sequence    string

	BinderChain      string
	StartingComplex  string
	StartingSequence string
	CDRPositions     []int // 0-based binder positions open to mutation
}

// #endregion target

// #region candidate
// Pose is a structural model returned by the predictor.
type Pose struct {
	PDB string `json:"pdb"`
}

// Step is the optimizer's transition for the iteration that produced a candidate.
type Step string

const (
	StepAccepted Step = "accepted"
	StepRejected Step = "rejected"
	StepErrored  Step = "errored"
)

// Provenance locates a candidate in the optimization trajectory.
type Provenance struct {
	Iteration int      `json:"iteration"`
	ParentID  string   `json:"parent_id,omitempty"`
	Mutations []string `json:"mutations,omitempty"` // e.g. "S31Y" (1-based)
}

// Candidate is one proposed binder design and the metrics it has accumulated.
type Candidate struct {
	ID         string     `json:"id"`
	Sequence   string     `json:"sequence"`
	Pose       *Pose      `json:"-"`
	Provenance Provenance `json:"provenance"`
	Step       Step       `json:"step"`
	Fitness    float64    `json:"fitness"`
	Error      string     `json:"error,omitempty"`
	Metrics    Metrics    `json:"metrics"`
}

// Errored reports whether the candidate is excluded from the filter cascade.
func (c *Candidate) Errored() bool { return c.Step == StepErrored }

// #endregion candidate

// #region ids
var runNamespace = uuid.MustParse("6f1c2b7e-3d4a-5b8c-9e0f-1a2b3c4d5e6f")

// RunID derives a stable identifier for an experiment name.
func RunID(experimentName string) uuid.UUID {
	return uuid.NewSHA1(runNamespace, []byte(experimentName))
}

// CandidateID derives the identifier of the candidate emitted at iteration.
// Identical runs therefore produce identical IDs.
func CandidateID(run uuid.UUID, iteration int) string {
	return uuid.NewSHA1(run, []byte(strconv.Itoa(iteration))).String()
}

// #endregion ids
