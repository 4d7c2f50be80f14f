package datalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/lologarithm/riego/riego"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sd"))
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	s.loc = time.UTC
	return s
}

func TestWriteAndLoad(t *testing.T) {
	s := testStore(t)
	day1 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	ev := riego.NewWaterEvent(riego.ReasonDry, day1.Add(time.Minute), 40*time.Second, riego.Reading{Temp: 21.5, Humidity: 30})
	ev.Actual = 39500 * time.Millisecond
	for _, r := range []Record{
		ReadingRecord(riego.Reading{Temp: 21.5, Humidity: 30, Time: day1}, riego.PumpIdle),
		WaterRecord(ev),
		ReadingRecord(riego.Reading{Temp: 19, Humidity: 55.25, Time: day2}, riego.PumpIdle),
	} {
		if err := s.Write(r); err != nil {
			t.Fatalf("write: %s", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "riego_20240701.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != strings.Join(header, ",") {
		t.Fatalf("unexpected day file:\n%s", data)
	}
	if lines[1] != "2024-07-01 12:00:00,reading,21.5,30.0,idle,none,," {
		t.Errorf("unexpected reading line: %q", lines[1])
	}

	all, err := s.Load(day1.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("loaded %d records, want 3", len(all))
	}
	w := all[1]
	if w.Kind != KindWater || w.Reason != riego.ReasonDry || w.Duration != 39500*time.Millisecond || w.ID != ev.ID {
		t.Errorf("water record came back as %#v", w)
	}
	if all[2].Humidity != 55.2 && all[2].Humidity != 55.3 {
		t.Errorf("humidity not rounded to one decimal: %v", all[2].Humidity)
	}

	later, err := s.Load(day2)
	if err != nil {
		t.Fatal(err)
	}
	if len(later) != 1 || !later[0].Time.Equal(day2) {
		t.Errorf("since filter returned %#v", later)
	}
}

func TestLoadSkipsMalformed(t *testing.T) {
	s := testStore(t)
	now := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	if err := s.Write(ReadingRecord(riego.Reading{Temp: 20, Humidity: 50, Time: now}, riego.PumpIdle)); err != nil {
		t.Fatal(err)
	}
	// power cut mid line
	if err := s.WriteLine(FileName(now), []string{"2024-07-01 08:0"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ReadingRecord(riego.Reading{Temp: 21, Humidity: 49, Time: now.Add(time.Minute)}, riego.PumpWatering)); err != nil {
		t.Fatal(err)
	}
	recs, err := s.Load(now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].Pump != riego.PumpWatering {
		t.Errorf("unexpected records: %#v", recs)
	}
}

func TestHistory(t *testing.T) {
	s := testStore(t)
	h, err := s.History()
	if err != nil || !h.LastWatering.IsZero() || !h.LastDeep.IsZero() {
		t.Fatalf("empty store history: %#v %v", h, err)
	}

	deep := time.Date(2024, 6, 29, 6, 0, 0, 0, time.UTC)
	dry := time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)
	manual := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	for _, e := range []riego.WaterEvent{
		{ID: "a", Reason: riego.ReasonDeep, Start: deep, Actual: time.Minute},
		{ID: "b", Reason: riego.ReasonDry, Start: dry, Actual: time.Minute},
		{ID: "c", Reason: riego.ReasonManual, Start: manual, Actual: time.Minute},
	} {
		if err := s.Write(WaterRecord(e)); err != nil {
			t.Fatal(err)
		}
	}
	h, err = s.History()
	if err != nil {
		t.Fatal(err)
	}
	if !h.LastDeep.Equal(deep) || !h.LastWatering.Equal(manual) {
		t.Errorf("unexpected history %#v", h)
	}
}

func TestOpenFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(file, "sub")); !errors.Is(err, ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}
