package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
)

// memRecordRepo is an in-memory AuditRecordRepository. The func fields
// override single operations.
type memRecordRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*entity.AuditRecord

	addCalls    int
	updateCalls int

	addFunc    func(ctx context.Context, rec *entity.AuditRecord) (int64, error)
	updateFunc func(ctx context.Context, rec *entity.AuditRecord) error
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: make(map[int64]*entity.AuditRecord)}
}

func (m *memRecordRepo) GetAll(ctx context.Context) ([]*entity.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.AuditRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRecordRepo) GetByID(ctx context.Context, id int64) (*entity.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (m *memRecordRepo) GetByPO(ctx context.Context, po string) (*entity.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByPO(po), nil
}

func (m *memRecordRepo) findByPO(po string) *entity.AuditRecord {
	key := strings.ToUpper(strings.TrimSpace(po))
	for _, r := range m.records {
		if strings.ToUpper(strings.TrimSpace(r.PONumber)) == key {
			return r.Clone()
		}
	}
	return nil
}

func (m *memRecordRepo) Add(ctx context.Context, rec *entity.AuditRecord) (int64, error) {
	m.addCalls++
	if m.addFunc != nil {
		return m.addFunc(ctx, rec)
	}
	return m.insert(rec)
}

func (m *memRecordRepo) insert(rec *entity.AuditRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByPO(rec.PONumber) != nil {
		return 0, entity.ErrDuplicatePO
	}
	m.nextID++
	c := rec.Clone()
	c.ID = m.nextID
	m.records[c.ID] = c
	return c.ID, nil
}

func (m *memRecordRepo) Update(ctx context.Context, rec *entity.AuditRecord) error {
	m.updateCalls++
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return nil
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *memRecordRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memRecordRepo) ExistsByPO(ctx context.Context, po string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByPO(po) != nil, nil
}

func (m *memRecordRepo) snapshot() map[int64]*entity.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[int64]*entity.AuditRecord, len(m.records))
	for id, r := range m.records {
		cp[id] = r.Clone()
	}
	return cp
}

func (m *memRecordRepo) restore(snap map[int64]*entity.AuditRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = snap
}

type mockLoadProvider struct {
	loads []*entity.Load

	getByStatusFunc func(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error)
}

func (m *mockLoadProvider) GetByStatus(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error) {
	if m.getByStatusFunc != nil {
		return m.getByStatusFunc(ctx, status)
	}
	var out []*entity.Load
	for _, l := range m.loads {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockLoadProvider) GetAll(ctx context.Context) ([]*entity.Load, error) {
	return m.loads, nil
}

type mockImportLogRepo struct {
	logs []*entity.ImportLog
}

func (m *mockImportLogRepo) Create(ctx context.Context, log *entity.ImportLog) error {
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockImportLogRepo) ListRecent(ctx context.Context, limit int) ([]*entity.ImportLog, error) {
	var out []*entity.ImportLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

// mockTxManager rolls the record repo and import log back on error.
type mockTxManager struct {
	repo *memRecordRepo
	logs *mockImportLogRepo
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.repo.snapshot()
	nLogs := len(m.logs.logs)
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		m.logs.logs = m.logs.logs[:nLogs]
		return err
	}
	return nil
}

type mockImporter struct {
	result *entity.ImportResult
	err    error
}

func (m *mockImporter) ParseFile(ctx context.Context, path string) (*entity.ImportResult, error) {
	return m.result, m.err
}

func (m *mockImporter) ParseReader(ctx context.Context, r io.Reader, name string) (*entity.ImportResult, error) {
	return m.result, m.err
}

type mockWorkbook struct {
	written []*entity.AuditRecord
}

func (m *mockWorkbook) Write(w io.Writer, records []*entity.AuditRecord) error {
	m.written = records
	_, err := fmt.Fprintf(w, "%d rows", len(records))
	return err
}

type mockFileStorage struct {
	saved map[string][]byte
}

func (m *mockFileStorage) Save(ctx context.Context, path string, content []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[path] = content
	return "/exports/" + path, nil
}

type mockPaths struct{}

func (mockPaths) Resolve(document string, vars map[string]string) (string, error) {
	return document + "/" + vars["date"] + ".txt", nil
}

func (mockPaths) SanitizeName(name string) string { return name }

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
