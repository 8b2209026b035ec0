package internaldefs

import "testing"

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 2, 3})
	want := []uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: want %d, got %d", i, want[i], got[i])
		}
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	seen := map[string]bool{AuditDroppedName: true}
	for _, d := range CounterDefs {
		if seen[d.Name] {
			t.Fatalf("duplicate series %s", d.Name)
		}
		seen[d.Name] = true
	}
	for _, d := range HistogramDefs {
		if seen[d.Name] {
			t.Fatalf("duplicate series %s", d.Name)
		}
		seen[d.Name] = true
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes differ in length")
	}
}
