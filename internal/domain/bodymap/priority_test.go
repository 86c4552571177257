package bodymap

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func marker(typ string, cat Category, attention bool, touched time.Time) *PatientMarker {
	return &PatientMarker{
		ID:                uuid.New(),
		MarkerType:        typ,
		Category:          cat,
		RequiresAttention: attention,
		Status:            StatusConfirmed,
		IsActive:          true,
		CreatedAt:         touched,
		UpdatedAt:         touched,
	}
}

func TestPriorityScore(t *testing.T) {
	now := time.Now()
	tests := []struct {
		cat       Category
		attention bool
		want      int
	}{
		{CategoryCritical, false, 60},
		{CategoryNeurological, false, 50},
		{CategoryChronic, false, 40},
		{CategoryModerate, true, 45},
		{CategoryMonitoring, false, 20},
		{CategoryInformational, true, 25},
	}
	for _, tt := range tests {
		if got := PriorityScore(marker("x", tt.cat, tt.attention, now)); got != tt.want {
			t.Errorf("%s attention=%v: got %d, want %d", tt.cat, tt.attention, got, tt.want)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := marker("npo", CategoryInformational, false, base)
	crit := marker("chest_tube", CategoryCritical, false, base)
	modAttn := marker("wound", CategoryModerate, true, base)
	chronic := marker("pacemaker", CategoryChronic, false, base)

	got := SortByPriority([]*PatientMarker{info, chronic, modAttn, crit})
	want := []*PatientMarker{crit, modAttn, chronic, info}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].MarkerType, want[i].MarkerType)
		}
	}
}

func TestSortByPriority_RecencyBreaksTies(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := marker("wound", CategoryModerate, false, base)
	newer := marker("g_tube", CategoryModerate, false, base)
	newer.UpdatedAt = base.Add(time.Hour)

	got := SortByPriority([]*PatientMarker{older, newer})
	if got[0] != newer {
		t.Errorf("expected most recently touched marker first")
	}
}

func TestSortByPriority_Stable(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := make([]*PatientMarker, 6)
	for i := range in {
		in[i] = marker("wound", CategoryModerate, false, base)
	}
	got := SortByPriority(in)
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("equal keys reordered at %d", i)
		}
	}
}

func TestSortByPriority_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	a := marker("npo", CategoryInformational, false, now)
	b := marker("chest_tube", CategoryCritical, false, now)
	in := []*PatientMarker{a, b}

	SortByPriority(in)
	if in[0] != a || in[1] != b {
		t.Error("input slice was reordered")
	}
}
