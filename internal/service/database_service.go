package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jsonjoin/internal/dbclient"
	"jsonjoin/internal/domain"
	"jsonjoin/internal/etl/sources"
	"jsonjoin/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Database Service — stored connections for database join sides
// ─────────────────────────────────────────────────────────────

// CreateDBConnInput is the service-layer DTO for creating/updating connections.
type CreateDBConnInput struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"`
}

func (in CreateDBConnInput) apply(conn *domain.DatabaseConnection) {
	conn.Name = in.Name
	conn.Driver = domain.DatabaseDriver(in.Driver)
	conn.Host = in.Host
	conn.Port = in.Port
	conn.Database = in.Database
	conn.Username = in.Username
	conn.SSLMode = in.SSLMode
	conn.ExtraJSON = in.ExtraJSON
}

// DatabaseService manages external database connections. Connectivity
// checks reuse pooled connectors; source reads get a connector of their own.
type DatabaseService struct {
	connStore domain.DatabaseConnectionStore
	secrets   secret.SecretStore

	mu               sync.Mutex
	activeConnectors map[string]*connEntry
}

type connEntry struct {
	connector dbclient.Connector
	createdAt time.Time
}

// NewDatabaseService creates a DatabaseService. secrets may be nil.
func NewDatabaseService(connStore domain.DatabaseConnectionStore, secrets secret.SecretStore) *DatabaseService {
	return &DatabaseService{
		connStore:        connStore,
		secrets:          secrets,
		activeConnectors: make(map[string]*connEntry),
	}
}

func secretKey(id string) string { return "db:" + id }

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

func (s *DatabaseService) GetConnection(id string) (*domain.DatabaseConnection, error) {
	return s.connStore.GetConnection(id)
}

func (s *DatabaseService) CreateConnection(input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	conn := &domain.DatabaseConnection{}
	input.apply(conn)
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(conn.ID), []byte(input.Password)); err != nil {
			return conn, fmt.Errorf("store password: %w", err)
		}
	}
	return conn, nil
}

func (s *DatabaseService) UpdateConnection(id string, input CreateDBConnInput) error {
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return err
	}
	input.apply(conn)
	if err := conn.Validate(); err != nil {
		return err
	}
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(id), []byte(input.Password)); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	// Next use re-connects with the new settings.
	s.evict(id)
	return nil
}

func (s *DatabaseService) DeleteConnection(id string) error {
	s.evict(id)
	if s.secrets != nil {
		_ = s.secrets.Delete(secretKey(id))
	}
	return s.connStore.DeleteConnection(id)
}

func (s *DatabaseService) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		_ = e.connector.Close()
		delete(s.activeConnectors, id)
	}
}

// ── Test ───────────────────────────────────────────────────

func (s *DatabaseService) TestConnection(ctx context.Context, id string) error {
	connector, err := s.getOrCreate(id)
	if err != nil {
		return err
	}
	if err := connector.TestConnection(ctx); err != nil {
		s.evict(id)
		return err
	}
	return nil
}

// ── Source queries (sources.DBProvider) ───────────────────

// ExecuteSourceQuery opens a dedicated connector for one source read and
// returns the first page. The cursor owns the connector and closes it.
func (s *DatabaseService) ExecuteSourceQuery(ctx context.Context, connID, query string, fetchSize int) (*sources.QueryPage, sources.SourceCursor, error) {
	connector, err := s.open(connID)
	if err != nil {
		return nil, nil, err
	}
	page, err := connector.Execute(ctx, query, fetchSize)
	if err != nil {
		connector.Close()
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	return toSourcePage(page), &sourceCursor{connector: connector}, nil
}

type sourceCursor struct {
	connector dbclient.Connector
}

func (c *sourceCursor) FetchMore(ctx context.Context, fetchSize int) (*sources.QueryPage, error) {
	page, err := c.connector.FetchMore(ctx, fetchSize)
	if err != nil {
		return nil, err
	}
	return toSourcePage(page), nil
}

func (c *sourceCursor) Close() error { return c.connector.Close() }

func toSourcePage(p *dbclient.QueryPage) *sources.QueryPage {
	return &sources.QueryPage{Columns: p.Columns, Rows: p.Rows, HasMore: p.HasMore}
}

// ── Connector Pool ─────────────────────────────────────────

func (s *DatabaseService) getOrCreate(id string) (dbclient.Connector, error) {
	s.mu.Lock()
	if e, ok := s.activeConnectors[id]; ok {
		s.mu.Unlock()
		return e.connector, nil
	}
	s.mu.Unlock()

	connector, err := s.open(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		// Lost a race with another caller; keep theirs.
		connector.Close()
		return e.connector, nil
	}
	s.activeConnectors[id] = &connEntry{connector: connector, createdAt: time.Now()}
	return connector, nil
}

func (s *DatabaseService) open(id string) (dbclient.Connector, error) {
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}

	var password string
	if s.secrets != nil {
		if pw, err := s.secrets.Get(secretKey(id)); err == nil {
			password = string(pw)
		}
	}

	connector, err := dbclient.NewConnector(conn, password)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}
	return connector, nil
}

// Close tears down all pooled database connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.activeConnectors {
		_ = entry.connector.Close()
		delete(s.activeConnectors, id)
	}
}
