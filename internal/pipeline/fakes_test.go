package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	marks   map[string]time.Time
	writes  []models.WatermarkUpdate
	getErr  map[string]error
	setErrs map[models.SyncStatus]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{marks: map[string]time.Time{}, getErr: map[string]error{}, setErrs: map[models.SyncStatus]error{}}
}

func (s *fakeStore) Get(_ context.Context, table string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[table]; err != nil {
		return time.Time{}, err
	}
	if wm, ok := s.marks[table]; ok {
		return wm, nil
	}
	return models.Epoch, nil
}

func (s *fakeStore) Set(_ context.Context, u models.WatermarkUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setErrs[u.Status]; err != nil {
		return err
	}
	s.writes = append(s.writes, u)
	s.marks[u.Table] = u.Watermark
	return nil
}

func (s *fakeStore) last(table string) models.WatermarkUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].Table == table {
			return s.writes[i]
		}
	}
	return models.WatermarkUpdate{}
}

type fakeSource struct {
	mu       sync.Mutex
	rows     map[string][]models.Row
	fetchErr map[string]error
	// failOnce errors are returned by the next fetch of a table only.
	failOnce map[string]error
	pingErrs []error
	pings    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: map[string][]models.Row{}, fetchErr: map[string]error{}, failOnce: map[string]error{}}
}

// add appends a check-in style row whose updated_at is at.
func (s *fakeSource) add(table, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[table] = append(s.rows[table], models.Row{
		Columns: []string{"id", "note", "updated_at"},
		Values:  []any{id, "note " + id, at},
	})
	sort.SliceStable(s.rows[table], func(i, j int) bool {
		a, _ := s.rows[table][i].Time("updated_at")
		b, _ := s.rows[table][j].Time("updated_at")
		return a.Before(b)
	})
}

func (s *fakeSource) FetchChanged(_ context.Context, table models.TableConfig, since time.Time) ([]models.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErr[table.Source]; err != nil {
		return nil, err
	}
	if err := s.failOnce[table.Source]; err != nil {
		delete(s.failOnce, table.Source)
		return nil, err
	}
	var out []models.Row
	for _, r := range s.rows[table.Source] {
		wm, err := r.Time(table.WatermarkColumn)
		if err != nil {
			return nil, err
		}
		if wm.After(since) {
			out = append(out, r)
		}
		if len(out) == table.BatchSize {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if len(s.pingErrs) > 0 {
		err := s.pingErrs[0]
		s.pingErrs = s.pingErrs[1:]
		return err
	}
	return nil
}

type fakeWarehouse struct {
	mu          sync.Mutex
	tables      map[string]map[string][]any
	upsertErr   map[string]error
	sessionErrs []error
	opened      int
	closed      int
	block       chan struct{}
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: map[string]map[string][]any{}, upsertErr: map[string]error{}}
}

func (w *fakeWarehouse) Session(ctx context.Context) (Session, error) {
	w.mu.Lock()
	if len(w.sessionErrs) > 0 {
		err := w.sessionErrs[0]
		w.sessionErrs = w.sessionErrs[1:]
		w.mu.Unlock()
		return nil, err
	}
	w.opened++
	block := w.block
	w.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &fakeSession{w: w}, nil
}

func (w *fakeWarehouse) rowCount(target string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tables[target])
}

type fakeSession struct {
	w *fakeWarehouse
}

func (s *fakeSession) Upsert(_ context.Context, target string, rows []models.Row, pk []string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.upsertErr[target]; err != nil {
		return err
	}
	if s.w.tables[target] == nil {
		s.w.tables[target] = map[string][]any{}
	}
	for _, r := range rows {
		key := ""
		for _, k := range pk {
			v, ok := r.Get(k)
			if !ok {
				return errors.Errorf("missing key %s", k)
			}
			key += fmt.Sprint(v) + "|"
		}
		s.w.tables[target][key] = r.Values
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.closed++
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	tables []string
	fatal  []string
}

func (n *fakeNotifier) NotifyTableSyncFailed(_ context.Context, table, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = append(n.tables, table)
	return nil
}

func (n *fakeNotifier) NotifySyncRunFatal(_ context.Context, runID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fatal = append(n.fatal, runID)
	return nil
}
