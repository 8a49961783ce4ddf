package domain

import "testing"

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b Version
		want int
	}{
		{NewVersion(1, 2, 0), NewVersion(1, 2, 0), 0},
		{NewVersion(1, 1, 77), NewVersion(1, 2, 0), -1},
		{NewVersion(2, 0, 0), NewVersion(1, 9, 9), 1},
		{NewVersion(1, 2, 5), NewVersion(1, 2, 4), 1},
		{VersionUnknown, V1Legacy, -1},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("expected %s vs %s = %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestVersionIsV2(t *testing.T) {
	if V1Legacy.IsV2() {
		t.Fatalf("expected legacy banner to be v1")
	}
	if NewVersion(1, 1, 77).IsV2() {
		t.Fatalf("expected 1.1.77 to be v1")
	}
	if !V2Threshold.IsV2() || !MatrixBaseline.IsV2() {
		t.Fatalf("expected 1.2.0 and MatriX to be v2")
	}
	if VersionUnknown.IsV2() {
		t.Fatalf("expected unknown version to be neither")
	}
}

func TestVersionString(t *testing.T) {
	if got := NewVersion(1, 2, 5).String(); got != "1.2.5" {
		t.Fatalf("expected 1.2.5, got %q", got)
	}
	if got := VersionUnknown.String(); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
