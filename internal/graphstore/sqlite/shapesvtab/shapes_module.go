// Package shapesvtab is a roaring-bitmap-backed SQLite virtual table that
// answers "which AstNode vertices share this shape_hash" without scanning
// ast_nodes: one bitmap per shape_hash, persisted as a BLOB in the
// shape_refs sidecar table and expanded row by row through the cursor.
package shapesvtab

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

var (
	once      sync.Once
	singleton *ShapesModule
	initErr   error
)

// ShapesModule implements vtab.Module as a process-wide singleton, since
// modernc.org/sqlite registers modules globally rather than per-connection.
type ShapesModule struct {
	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

// Register registers the astgraph_shapes module with the global SQLite
// driver. Safe to call more than once; only the first call registers.
func Register() (*ShapesModule, error) {
	once.Do(func() {
		singleton = &ShapesModule{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, "astgraph_shapes", singleton); err != nil {
			initErr = fmt.Errorf("shapesvtab: register module: %w", err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterDB associates a *sql.DB with an id so CREATE VIRTUAL TABLE ...
// USING astgraph_shapes(id) can find its backing shape_refs table.
func (m *ShapesModule) RegisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
}

func (m *ShapesModule) UnregisterDB(id string) {
	m.mu.Lock()
	delete(m.dbs, id)
	m.mu.Unlock()
}

func (m *ShapesModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("shapesvtab: missing DB ID argument (expected USING astgraph_shapes(id))")
	}
	id := args[3]

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("shapesvtab: unknown DB ID %q", id)
	}

	if err := ctx.Declare("CREATE TABLE x(shape_hash TEXT, node_id INTEGER)"); err != nil {
		return nil, err
	}
	return &shapesTable{db: db}, nil
}

func (m *ShapesModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

type shapesTable struct {
	db *sql.DB
}

func (t *shapesTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 || c.Op != vtab.OpEQ {
			continue
		}
		c.ArgIndex = 0
		c.Omit = true
		info.IdxNum = 1
		info.EstimatedCost = 1
		info.EstimatedRows = 10
		return nil
	}
	info.IdxNum = 0
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *shapesTable) Open() (vtab.Cursor, error) { return &shapesCursor{table: t}, nil }
func (t *shapesTable) Disconnect() error          { return nil }
func (t *shapesTable) Destroy() error              { return nil }

type shapesRow struct {
	shapeHash string
	nodeID    int64
}

type shapesCursor struct {
	table *shapesTable
	rows  []shapesRow
	pos   int
}

func (c *shapesCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0

	if idxNum == 1 {
		shapeHash, ok := vals[0].(string)
		if !ok {
			return nil
		}
		return c.loadShape(shapeHash)
	}
	return c.loadAll()
}

func (c *shapesCursor) loadShape(shapeHash string) error {
	var blob []byte
	err := c.table.db.QueryRow("SELECT bitmap FROM shape_refs WHERE shape_hash = ?", shapeHash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("shapesvtab: query shape %q: %w", shapeHash, err)
	}
	return c.expandBitmap(shapeHash, blob)
}

func (c *shapesCursor) loadAll() error {
	type entry struct {
		shapeHash string
		blob      []byte
	}

	rows, err := c.table.db.Query("SELECT shape_hash, bitmap FROM shape_refs")
	if err != nil {
		return fmt.Errorf("shapesvtab: scan shape_refs: %w", err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.shapeHash, &e.blob); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("shapesvtab: scan shape_refs rows: %w", err)
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := c.expandBitmap(e.shapeHash, e.blob); err != nil {
			return err
		}
	}
	return nil
}

func (c *shapesCursor) expandBitmap(shapeHash string, blob []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("shapesvtab: unmarshal bitmap for %q: %w", shapeHash, err)
	}
	it := rb.Iterator()
	for it.HasNext() {
		c.rows = append(c.rows, shapesRow{shapeHash: shapeHash, nodeID: int64(it.Next())})
	}
	return nil
}

func (c *shapesCursor) Next() error { c.pos++; return nil }
func (c *shapesCursor) Eof() bool   { return c.pos >= len(c.rows) }

func (c *shapesCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	switch col {
	case 0:
		return c.rows[c.pos].shapeHash, nil
	case 1:
		return c.rows[c.pos].nodeID, nil
	default:
		return nil, nil
	}
}

func (c *shapesCursor) Rowid() (int64, error) { return int64(c.pos), nil }
func (c *shapesCursor) Close() error          { c.rows = nil; return nil }
