package catalog

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/roach88/epsync/internal/ir"
)

// Op names a Memory operation, for hooks and call recording.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call is one recorded mutating call against a Memory catalog.
type Call struct {
	Op   Op
	Type ir.EntityType
	ID   string
}

// Hook runs before an operation, outside the catalog lock. A non-nil
// return fails the operation with that error. Hooks may call Memory
// methods, e.g. Remove to simulate a concurrent delete.
type Hook func(op Op, t ir.EntityType, id string) error

// Memory is an in-process catalog.
//
// Entities are listed in insertion order. Deleting an entity deletes
// everything scoped under it. Creating an entity whose name already
// exists in the same parent fails with 409, as the real service does;
// Seed bypasses that check so tests can stage duplicates.
type Memory struct {
	mu       sync.Mutex
	pageSize int
	prefix   string
	nextID   int
	order    []string
	entities map[string]stored
	calls    []Call
	hook     Hook
}

type stored struct {
	typ  ir.EntityType
	snap ir.Snapshot
}

// MemoryOption configures a Memory catalog.
type MemoryOption func(*Memory)

// WithPageSize sets the number of items per List page. Default 100.
func WithPageSize(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithIDPrefix sets the prefix of generated IDs. Default "id".
func WithIDPrefix(p string) MemoryOption {
	return func(m *Memory) {
		m.prefix = p
	}
}

// WithHook installs h before every operation.
func WithHook(h Hook) MemoryOption {
	return func(m *Memory) {
		m.hook = h
	}
}

// NewMemory returns an empty in-memory catalog.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		pageSize: 100,
		prefix:   "id",
		entities: make(map[string]stored),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entities implements Client.
func (m *Memory) Entities(t ir.EntityType) EntityClient {
	return &memoryEntities{m: m, typ: t}
}

// SetHook replaces the hook. Pass nil to remove it.
func (m *Memory) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// Seed inserts s as an entity of type t without any uniqueness check. An
// empty s.ID is generated. It returns the stored snapshot.
func (m *Memory) Seed(t ir.EntityType, s ir.Snapshot) ir.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.newID()
	}
	s.Settings = s.Settings.Clone()
	m.insert(t, s)
	return s
}

// Remove deletes id and its descendants without recording a call.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeTree(id)
}

// Snapshots returns every entity of type t in insertion order.
func (m *Memory) Snapshots(t ir.EntityType) []ir.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ir.Snapshot{}
	for _, id := range m.order {
		if e := m.entities[id]; e.typ == t {
			out = append(out, copySnapshot(e.snap))
		}
	}
	return out
}

// Len returns the number of stored entities.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Calls returns the recorded mutating calls in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// ResetCalls clears the recorded calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) runHook(op Op, t ir.EntityType, id string) error {
	m.mu.Lock()
	h := m.hook
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(op, t, id)
}

func (m *Memory) newID() string {
	m.nextID++
	return fmt.Sprintf("%s-%d", m.prefix, m.nextID)
}

func (m *Memory) insert(t ir.EntityType, s ir.Snapshot) {
	if _, ok := m.entities[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.entities[s.ID] = stored{typ: t, snap: s}
}

func (m *Memory) removeTree(id string) {
	if _, ok := m.entities[id]; !ok {
		return
	}
	for _, child := range slices.Clone(m.order) {
		if e, ok := m.entities[child]; ok && e.snap.ParentID == id {
			m.removeTree(child)
		}
	}
	delete(m.entities, id)
	m.order = slices.DeleteFunc(m.order, func(x string) bool { return x == id })
}

func copySnapshot(s ir.Snapshot) ir.Snapshot {
	s.Settings = s.Settings.Clone()
	return s
}

type memoryEntities struct {
	m   *Memory
	typ ir.EntityType
}

func (c *memoryEntities) List(ctx context.Context, f Filter, page int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if page < 1 {
		return Page{}, &APIError{Op: "list " + string(c.typ), Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid page %d", page)}
	}
	if err := c.m.runHook(OpList, c.typ, ""); err != nil {
		return Page{}, err
	}

	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	var matched []ir.Snapshot
	for _, id := range c.m.order {
		e := c.m.entities[id]
		if e.typ != c.typ {
			continue
		}
		if f.Name != "" && e.snap.Name != f.Name {
			continue
		}
		if f.ParentID != "" && e.snap.ParentID != f.ParentID {
			continue
		}
		matched = append(matched, copySnapshot(e.snap))
	}

	start := (page - 1) * c.m.pageSize
	if start >= len(matched) {
		return Page{Items: []ir.Snapshot{}}, nil
	}
	end := min(start+c.m.pageSize, len(matched))
	p := Page{Items: matched[start:end]}
	if end < len(matched) {
		next := page + 1
		p.NextPage = &next
	}
	return p, nil
}

func (c *memoryEntities) Get(ctx context.Context, id string) (ir.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ir.Snapshot{}, err
	}
	if err := c.m.runHook(OpGet, c.typ, id); err != nil {
		return ir.Snapshot{}, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	e, ok := c.m.entities[id]
	if !ok || e.typ != c.typ {
		return ir.Snapshot{}, &NotFoundError{Type: c.typ, ID: id}
	}
	return copySnapshot(e.snap), nil
}

func (c *memoryEntities) Create(ctx context.Context, d Draft) (ir.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ir.Snapshot{}, err
	}
	if err := c.m.runHook(OpCreate, c.typ, ""); err != nil {
		return ir.Snapshot{}, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	op := "create " + string(c.typ)
	if parent, ok := c.typ.Parent(); ok && !(parent == ir.TypeApplicationDomain && d.ParentID == "") {
		if e, exists := c.m.entities[d.ParentID]; !exists || e.typ != parent {
			return ir.Snapshot{}, &APIError{Op: op, Status: http.StatusBadRequest, Message: fmt.Sprintf("%s %q does not exist", parent, d.ParentID)}
		}
	}
	for _, id := range c.m.order {
		e := c.m.entities[id]
		if e.typ != c.typ || e.snap.ParentID != d.ParentID {
			continue
		}
		if c.typ.IsVersion() && e.snap.Version == d.Version {
			return ir.Snapshot{}, &APIError{Op: op, Status: http.StatusConflict, Message: fmt.Sprintf("version %s already exists", d.Version)}
		}
		if !c.typ.IsVersion() && e.snap.Name == d.Name {
			return ir.Snapshot{}, &APIError{Op: op, Status: http.StatusConflict, Message: fmt.Sprintf("name %q already exists", d.Name)}
		}
	}

	s := ir.Snapshot{
		ID:       c.m.newID(),
		Name:     d.Name,
		ParentID: d.ParentID,
		Version:  d.Version,
		Settings: d.Settings.Clone(),
	}
	c.m.insert(c.typ, s)
	c.m.calls = append(c.m.calls, Call{Op: OpCreate, Type: c.typ, ID: s.ID})
	return copySnapshot(s), nil
}

func (c *memoryEntities) Update(ctx context.Context, id string, settings ir.Settings) (ir.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ir.Snapshot{}, err
	}
	if err := c.m.runHook(OpUpdate, c.typ, id); err != nil {
		return ir.Snapshot{}, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	e, ok := c.m.entities[id]
	if !ok || e.typ != c.typ {
		return ir.Snapshot{}, &NotFoundError{Type: c.typ, ID: id}
	}
	merged := e.snap.Settings.Clone()
	if merged == nil {
		merged = ir.Settings{}
	}
	for k, v := range settings {
		merged[k] = v
	}
	e.snap.Settings = merged
	c.m.entities[id] = e
	c.m.calls = append(c.m.calls, Call{Op: OpUpdate, Type: c.typ, ID: id})
	return copySnapshot(e.snap), nil
}

func (c *memoryEntities) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.m.runHook(OpDelete, c.typ, id); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	e, ok := c.m.entities[id]
	if !ok || e.typ != c.typ {
		return &NotFoundError{Type: c.typ, ID: id}
	}
	c.m.removeTree(id)
	c.m.calls = append(c.m.calls, Call{Op: OpDelete, Type: c.typ, ID: id})
	return nil
}
