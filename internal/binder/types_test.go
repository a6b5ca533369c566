package binder

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseModality(t *testing.T) {
	for in, want := range map[string]Modality{"vhh": ModalityVHH, "NB": ModalityVHH, "nanobody": ModalityVHH, " scFv ": ModalitySCFV} {
		got, err := ParseModality(in)
		if err != nil {
			t.Fatalf("ParseModality(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseModality(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseModality("fab"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestFileTag(t *testing.T) {
	if ModalityVHH.FileTag() != "nb" || ModalitySCFV.FileTag() != "scfv" {
		t.Fatal("unexpected file tags")
	}
}

func TestCandidateIDDeterministic(t *testing.T) {
	a := CandidateID(RunID("exp1"), 3)
	b := CandidateID(RunID("exp1"), 3)
	if a != b {
		t.Fatalf("ids differ: %s vs %s", a, b)
	}
	if a == CandidateID(RunID("exp1"), 4) {
		t.Fatal("different iterations share an id")
	}
	if a == CandidateID(RunID("exp2"), 3) {
		t.Fatal("different experiments share an id")
	}
}

func TestOracleErrorIs(t *testing.T) {
	cause := fmt.Errorf("deadline")
	err := fmt.Errorf("predict: %w", &OracleError{Op: "predict", Kind: ErrOracleTimeout, Err: cause})
	if !errors.Is(err, ErrOracleTimeout) {
		t.Fatal("expected ErrOracleTimeout")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
	if !Retryable(err) {
		t.Fatal("timeout should be retryable")
	}
	if Retryable(&OracleError{Op: "predict", Kind: ErrOracleInvalidInput}) {
		t.Fatal("invalid input should not be retryable")
	}
}
