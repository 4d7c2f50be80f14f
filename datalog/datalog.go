// Package datalog appends readings and waterings to daily CSV files on the
// storage card and reads them back for history.
package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.com/lologarithm/riego/irrigation"
	"gitlab.com/lologarithm/riego/riego"
	"gitlab.com/lologarithm/riego/rtc"
)

// ErrStorage wraps every failure to touch the storage directory.
var ErrStorage = errors.New("storage error")

const (
	filePrefix = "riego_"
	fileExt    = ".csv"
	stampFmt   = "2006-01-02 15:04:05"
	// how many day files History will look back through
	historyFiles = 30
)

var header = []string{"time", "kind", "temp", "humidity", "pump", "reason", "duration", "id"}

// Kind is the type of line.
type Kind string

// Line kinds
const (
	KindReading Kind = "reading"
	KindWater   Kind = "water"
)

// Record is one line of a day file.
type Record struct {
	Time     time.Time
	Kind     Kind
	Temp     float32
	Humidity float32
	Pump     riego.PumpState
	Reason   riego.Reason
	Duration time.Duration // pump on time for water records
	ID       string
}

// ReadingRecord records a sensor reading.
func ReadingRecord(r riego.Reading, pump riego.PumpState) Record {
	return Record{Time: r.Time, Kind: KindReading, Temp: r.Temp, Humidity: r.Humidity, Pump: pump}
}

// WaterRecord records a finished pump run.
func WaterRecord(e riego.WaterEvent) Record {
	return Record{
		Time:     e.Start,
		Kind:     KindWater,
		Temp:     e.Temp,
		Humidity: e.Humidity,
		Pump:     riego.PumpIdle,
		Reason:   e.Reason,
		Duration: e.Actual,
		ID:       e.ID,
	}
}

func (r Record) fields() []string {
	dur := ""
	if r.Kind == KindWater {
		dur = strconv.FormatFloat(r.Duration.Seconds(), 'f', 1, 64)
	}
	return []string{
		rtc.Stamp(r.Time),
		string(r.Kind),
		strconv.FormatFloat(float64(r.Temp), 'f', 1, 32),
		strconv.FormatFloat(float64(r.Humidity), 'f', 1, 32),
		r.Pump.String(),
		r.Reason.String(),
		dur,
		r.ID,
	}
}

func parseRecord(f []string, loc *time.Location) (Record, error) {
	if len(f) != len(header) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(header), len(f))
	}
	var r Record
	var err error
	if r.Time, err = time.ParseInLocation(stampFmt, f[0], loc); err != nil {
		return r, err
	}
	r.Kind = Kind(f[1])
	if r.Kind != KindReading && r.Kind != KindWater {
		return r, fmt.Errorf("unknown kind %q", f[1])
	}
	t, err := strconv.ParseFloat(f[2], 32)
	if err != nil {
		return r, err
	}
	h, err := strconv.ParseFloat(f[3], 32)
	if err != nil {
		return r, err
	}
	r.Temp, r.Humidity = float32(t), float32(h)
	if f[4] == riego.PumpWatering.String() {
		r.Pump = riego.PumpWatering
	}
	r.Reason = riego.ParseReason(f[5])
	if f[6] != "" {
		secs, err := strconv.ParseFloat(f[6], 64)
		if err != nil {
			return r, err
		}
		r.Duration = time.Duration(secs * float64(time.Second))
	}
	r.ID = f[7]
	return r, nil
}

// Store is a directory of day files.
type Store struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorage, err)
	}
	return &Store{dir: dir, loc: time.Local}, nil
}

// Dir is where the files live.
func (s *Store) Dir() string {
	return s.dir
}

// FileName is the day file a record at t goes in.
func FileName(t time.Time) string {
	return filePrefix + t.Format("20060102") + fileExt
}

// WriteLine appends fields as one CSV line to file inside the store directory.
func (s *Store) WriteLine(file string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLines(file, fields)
}

func (s *Store) writeLines(file string, lines ...[]string) error {
	f, err := os.OpenFile(filepath.Join(s.dir, filepath.Base(file)), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStorage, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(lines); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s", ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s", ErrStorage, err)
	}
	return nil
}

// Write appends r to its day file, adding the header when the file is new.
func (s *Store) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := FileName(r.Time.In(s.loc))
	if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
		return s.writeLines(name, header, r.fields())
	}
	return s.writeLines(name, r.fields())
}

// dayFiles lists the day files sorted oldest first.
func (s *Store) dayFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorage, err)
	}
	names := []string{}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, fileExt) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) readFile(name string) ([]Record, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorage, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records := []Record{}
	for line := 1; ; line++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[Error] %s:%d unreadable line: %s", name, line, err)
			continue
		}
		if len(fields) > 0 && fields[0] == header[0] {
			continue
		}
		rec, err := parseRecord(fields, s.loc)
		if err != nil {
			// Most likely a line cut short by a power loss.
			log.Printf("[Error] %s:%d skipping malformed line: %s", name, line, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Load reads every record at or after since, oldest first.
func (s *Store) Load(since time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.dayFiles()
	if err != nil {
		return nil, err
	}
	first := FileName(since.In(s.loc))
	events := []Record{}
	for _, n := range names {
		if n < first {
			continue
		}
		recs, err := s.readFile(n)
		if err != nil {
			log.Printf("[Error] Failed to open stats file: %s", err)
			continue
		}
		for _, r := range recs {
			if !r.Time.Before(since) {
				events = append(events, r)
			}
		}
	}
	return events, nil
}

// History finds the most recent waterings so minimum intervals survive restarts.
// Manual waterings count towards the dry watering interval.
func (s *Store) History() (irrigation.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := irrigation.History{}
	names, err := s.dayFiles()
	if err != nil {
		return h, err
	}
	for i, checked := len(names)-1, 0; i >= 0 && checked < historyFiles; i, checked = i-1, checked+1 {
		recs, err := s.readFile(names[i])
		if err != nil {
			continue
		}
		for _, r := range recs {
			if r.Kind != KindWater {
				continue
			}
			switch r.Reason {
			case riego.ReasonDry, riego.ReasonManual:
				if r.Time.After(h.LastWatering) {
					h.LastWatering = r.Time
				}
			case riego.ReasonDeep:
				if r.Time.After(h.LastDeep) {
					h.LastDeep = r.Time
				}
			}
		}
		if !h.LastWatering.IsZero() && !h.LastDeep.IsZero() {
			break
		}
	}
	return h, nil
}
