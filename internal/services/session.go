package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"diglet/internal/config"
	"diglet/internal/database"
	"diglet/internal/logger"
	"diglet/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrNoAOI           = errors.New("no AOI loaded")
	ErrNoScan          = errors.New("no scan results")
	ErrUnknownTable    = errors.New("table is not part of the scan results")
	ErrUnknownTables   = errors.New("tables not registered in geometry_columns")
)

// Catalog lists schemas and geometry tables.
type Catalog interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListGeometryTables(ctx context.Context, schema string) ([]string, error)
}

// DiagnosticSession is the state of one operator's work against one
// database: the loaded AOI, the last scan and the layer selection. Its
// operations run one at a time.
type DiagnosticSession struct {
	ID      string
	Profile models.ConnectionProfile

	mu         sync.Mutex
	closer     io.Closer
	catalog    Catalog
	loader     *AOILoader
	scanner    *Scanner
	exporter   *Exporter
	aggregator *Aggregator
	oplog      *logger.OperationLog
	logr       *zap.Logger

	aoiPath   string
	aoi       *models.AOIGeometry
	report    *models.ScanReport
	selection models.LayerSelection

	lastUsedMu sync.Mutex
	lastUsed   time.Time
}

// OpenSession connects to the database described by profile and builds a
// session around that single connection.
func OpenSession(ctx context.Context, profile models.ConnectionProfile, cfg *config.Config, base *logger.Logger) (*DiagnosticSession, error) {
	oplog := logger.NewOperationLog(0)
	logr := base.Tee(oplog.Core()).Logger

	db, err := database.New(ctx, profile, cfg)
	if err != nil {
		logr.Error("connection failed", zap.String("profile", profile.String()), zap.Error(err))
		return nil, err
	}
	logr.Info("connected", zap.String("profile", profile.String()))

	q := database.NewQuerier(db)
	return NewDiagnosticSession(profile, NewCatalogService(db, cfg, logr), q, db, cfg, logr, oplog), nil
}

// NewDiagnosticSession assembles a session from its collaborators. closer is
// released by Close and may be nil.
func NewDiagnosticSession(
	profile models.ConnectionProfile,
	catalog Catalog,
	q database.Querier,
	closer io.Closer,
	cfg *config.Config,
	logr *zap.Logger,
	oplog *logger.OperationLog,
) *DiagnosticSession {
	return &DiagnosticSession{
		ID:         uuid.New().String(),
		Profile:    profile,
		closer:     closer,
		catalog:    catalog,
		loader:     NewAOILoader(NewPostGISMerger(q), cfg.TargetSRID, logr),
		scanner:    NewScanner(q, cfg, logr),
		exporter:   NewExporter(q, cfg, logr),
		aggregator: NewAggregator(cfg, logr),
		oplog:      oplog,
		logr:       logr,
		lastUsed:   time.Now(),
	}
}

// SetProgress installs a callback for per-table scan and export progress.
func (s *DiagnosticSession) SetProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanner.Progress = fn
	s.exporter.Progress = fn
}

func (s *DiagnosticSession) Schemas(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.ListSchemas(ctx)
}

func (s *DiagnosticSession) Tables(ctx context.Context, schema string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.ListGeometryTables(ctx, schema)
}

// LoadAOI reads the AOI file and keeps its path for the export step.
func (s *DiagnosticSession) LoadAOI(ctx context.Context, path string) (models.AOIGeometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aoi, err := s.loader.Load(ctx, path)
	if err != nil {
		return models.AOIGeometry{}, err
	}
	s.aoiPath = path
	s.aoi = &aoi
	s.report = nil
	s.selection = nil
	return aoi, nil
}

// AOI returns the loaded AOI, if any.
func (s *DiagnosticSession) AOI() (models.AOIGeometry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aoi == nil {
		return models.AOIGeometry{}, false
	}
	return *s.aoi, true
}

// Scan runs the intersection scan over the geometry tables of schema. A
// non-empty tables list restricts the scan to those of them the catalog
// knows; naming a table it does not know is an error.
func (s *DiagnosticSession) Scan(ctx context.Context, schema string, tables []string) (*models.ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aoi == nil {
		return nil, ErrNoAOI
	}

	listed, err := s.catalog.ListGeometryTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	kept, unknown := restrictTables(listed, tables)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTables, unknown)
	}

	report, err := s.scanner.Scan(ctx, schema, kept, s.aoi.WKT)
	s.report = report
	s.selection = models.NewLayerSelection(report.Results)
	return report, err
}

// Report returns the last scan report.
func (s *DiagnosticSession) Report() (*models.ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, ErrNoScan
	}
	return s.report, nil
}

// Hierarchy renders the last scan for display.
func (s *DiagnosticSession) Hierarchy() ([]models.DiagnosticNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, ErrNoScan
	}
	nodes := s.aggregator.BuildHierarchy(s.report.Results)
	for i := range nodes {
		included := s.selection[nodes[i].Name]
		nodes[i].Checked = &included
	}
	return nodes, nil
}

// CountReport returns the flat table/count report of the last scan.
func (s *DiagnosticSession) CountReport() ([]models.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, ErrNoScan
	}
	return BuildCountReport(s.report.Results), nil
}

// SetIncluded toggles one table of the last scan in or out of the export.
func (s *DiagnosticSession) SetIncluded(table string, included bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return ErrNoScan
	}
	if !s.selection.Toggle(table, included) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	s.logr.Info("selection changed", zap.String("table", table), zap.Bool("included", included))
	return nil
}

// Selection returns a copy of the current layer selection.
func (s *DiagnosticSession) Selection() models.LayerSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(models.LayerSelection, len(s.selection))
	for k, v := range s.selection {
		out[k] = v
	}
	return out
}

// Export writes the selected layers of the last scan. The AOI is read again
// from its file rather than reused from the scan.
func (s *DiagnosticSession) Export(ctx context.Context, outputPath string) (*models.ExportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aoiPath == "" {
		return nil, ErrNoAOI
	}
	if s.report == nil {
		return nil, ErrNoScan
	}

	aoi, err := s.loader.Load(ctx, s.aoiPath)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, outputPath, aoi, s.report.Schema, s.selection)
}

// Log returns the operation log entries.
func (s *DiagnosticSession) Log() []logger.Entry {
	return s.oplog.Entries()
}

func (s *DiagnosticSession) touch(now time.Time) {
	s.lastUsedMu.Lock()
	s.lastUsed = now
	s.lastUsedMu.Unlock()
}

func (s *DiagnosticSession) idleSince() time.Time {
	s.lastUsedMu.Lock()
	defer s.lastUsedMu.Unlock()
	return s.lastUsed
}

// Close releases the database connection.
func (s *DiagnosticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logr.Info("session closed", zap.String("session_id", s.ID))
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SessionManager holds the live sessions of the HTTP server.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*DiagnosticSession
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*DiagnosticSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *SessionManager) Add(s *DiagnosticSession) {
	s.touch(m.now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

// Get returns a live session and marks it used. An idle session past the
// TTL is closed and removed.
func (m *SessionManager) Get(id string) (*DiagnosticSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := m.now()
	if m.ttl > 0 && now.Sub(s.idleSince()) > m.ttl {
		_ = m.Remove(id)
		return nil, ErrSessionExpired
	}
	s.touch(now)
	return s, nil
}

// Remove closes and forgets a session.
func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

// Sweep removes every expired session and returns how many it closed.
func (m *SessionManager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.ttl {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		_ = m.Remove(id)
	}
	return len(expired)
}

// CloseAll closes every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*DiagnosticSession)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
