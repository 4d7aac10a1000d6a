package hw

import "testing"

func TestMatrixPairingsAccepted(t *testing.T) {
	for hwType, flashTypes := range compatible {
		for _, ft := range flashTypes {
			if !Compatible(hwType, ft) {
				t.Errorf("valid pairing (%d, %d) rejected", hwType, ft)
			}
		}
	}
}

func TestInvalidPairingRejected(t *testing.T) {
	// PCAN-Router never ships with an LPC2368.
	if Compatible(16, 12) {
		t.Errorf("invalid pairing (16, 12) accepted")
	}
	if Compatible(200, 1) {
		t.Errorf("unknown hardware type accepted")
	}
}

func TestPredicatesMatchFlags(t *testing.T) {
	p, err := ProfileFor(21)
	if err != nil {
		t.Fatalf("ProfileFor(21): %v", err)
	}
	if !p.SwitchesToBootloader() || !p.InvertsAlternating() || !p.ResetsAfterFlash() {
		t.Errorf("PCAN-Router Pro predicates wrong: %+v", p)
	}
	if p.EndsProgramming() {
		t.Errorf("PCAN-Router Pro should not need end programming")
	}
	if p.TransferLen() != 6 {
		t.Errorf("PCAN-Router Pro transfer len: got %d, want 6", p.TransferLen())
	}
}

func TestTransferLenDataMode8(t *testing.T) {
	p, err := ProfileFor(25)
	if err != nil {
		t.Fatalf("ProfileFor(25): %v", err)
	}
	if p.TransferLen() != 8 {
		t.Errorf("PCAN-RouterDR transfer len: got %d, want 8", p.TransferLen())
	}
}

func TestProfileForUnknown(t *testing.T) {
	if _, err := ProfileFor(99); err == nil {
		t.Errorf("unknown hardware type resolved")
	}
}

func TestNames(t *testing.T) {
	if got := HardwareName(16); got != "PCAN-Router" {
		t.Errorf("HardwareName(16) = %q", got)
	}
	if got := FlashName(14); got != "LPC4078" {
		t.Errorf("FlashName(14) = %q", got)
	}
	if got := HardwareName(99); got != "unknown" {
		t.Errorf("HardwareName(99) = %q", got)
	}
}
