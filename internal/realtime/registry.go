package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/observability"
)

var (
	ErrUnknownConnection = errors.New("connection not registered")
	ErrNotStaff          = errors.New("only staff connections can target a customer")
)

// Conn is a live transport session. Send must not block: a frame that cannot
// be queued is dropped and Send reports false.
type Conn interface {
	ID() string
	Send(frame Frame) bool
	Close()
}

// Membership describes a connection removed by Leave.
type Membership struct {
	AccountID int64
	Role      domain.Role
	Remaining int
}

type member struct {
	conn      Conn
	accountID int64
	role      domain.Role
	target    int64
	rooms     []Room
}

// Registry maps accounts to their live connections and routes events to rooms.
// It holds no persistent state; delivery is fire-and-forget.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*member
	rooms   map[Room]map[string]Conn
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		members: make(map[string]*member),
		rooms:   make(map[Room]map[string]Conn),
		metrics: metrics,
	}
}

// Join adds conn to the account's room, and to the staff room for staff.
func (r *Registry) Join(conn Conn, accountID int64, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[conn.ID()]; exists {
		r.removeLocked(conn.ID())
	}

	m := &member{conn: conn, accountID: accountID, role: role}
	m.rooms = append(m.rooms, AccountRoom(accountID))
	if role == domain.RoleStaff {
		m.rooms = append(m.rooms, StaffRoom)
	}
	for _, room := range m.rooms {
		conns, ok := r.rooms[room]
		if !ok {
			conns = make(map[string]Conn)
			r.rooms[room] = conns
		}
		conns[conn.ID()] = conn
	}
	r.members[conn.ID()] = m
}

// Leave removes conn from every room. Remaining is the number of connections
// the account still has; zero means the account is fully disconnected.
func (r *Registry) Leave(conn Conn) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn.ID()]
	if !ok {
		return Membership{}, false
	}
	r.removeLocked(conn.ID())
	return Membership{
		AccountID: m.accountID,
		Role:      m.role,
		Remaining: len(r.rooms[AccountRoom(m.accountID)]),
	}, true
}

// Lookup reports the account and role a connection joined with.
func (r *Registry) Lookup(connID string) (Membership, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[connID]
	if !ok {
		return Membership{}, false
	}
	return Membership{
		AccountID: m.accountID,
		Role:      m.role,
		Remaining: len(r.rooms[AccountRoom(m.accountID)]),
	}, true
}

func (r *Registry) removeLocked(connID string) {
	m := r.members[connID]
	for _, room := range m.rooms {
		conns := r.rooms[room]
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.members, connID)
}

// SetStaffTarget records which customer a staff connection is viewing.
func (r *Registry) SetStaffTarget(connID string, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if m.role != domain.RoleStaff {
		return ErrNotStaff
	}
	m.target = targetID
	return nil
}

// StaffTarget returns the customer a staff connection is viewing.
func (r *Registry) StaffTarget(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[connID]
	if !ok || m.target == 0 {
		return 0, false
	}
	return m.target, true
}

// Emit delivers an event to every connection currently in room and returns
// how many accepted it.
func (r *Registry) Emit(room Room, event EventName, payload any) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[room]))
	for _, conn := range r.rooms[room] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	return r.deliver(targets, Frame{Event: event, Data: payload})
}

// SendTo delivers an event to a single connection.
func (r *Registry) SendTo(connID string, event EventName, payload any) bool {
	r.mu.RLock()
	m, ok := r.members[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.deliver([]Conn{m.conn}, Frame{Event: event, Data: payload}) == 1
}

func (r *Registry) deliver(targets []Conn, frame Frame) int {
	delivered := 0
	for _, conn := range targets {
		if conn.Send(frame) {
			delivered++
		}
	}
	r.metrics.RecordEmit(string(frame.Event), delivered, len(targets)-delivered)
	return delivered
}

// ConnectionCount returns the number of live connections of an account.
func (r *Registry) ConnectionCount(accountID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[AccountRoom(accountID)])
}

// ConnectedAccounts lists accounts with at least one live connection.
func (r *Registry) ConnectedAccounts() []int64 {
	r.mu.RLock()
	seen := make(map[int64]struct{}, len(r.members))
	for _, m := range r.members {
		seen[m.accountID] = struct{}{}
	}
	r.mu.RUnlock()

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAccount closes every live connection of an account. The transport is
// expected to call Leave for each of them as its read loop exits.
func (r *Registry) CloseAccount(accountID int64) int {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.rooms[AccountRoom(accountID)]))
	for _, conn := range r.rooms[AccountRoom(accountID)] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}
