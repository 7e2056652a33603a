package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var errReadOnly = errors.New("fleet: write attempted in read-only view")

// InMemory implements Store with in-process concurrency safety. Writers work
// on a copy of the state that replaces the live one only when fn succeeds,
// so a failed unit of work leaves nothing behind.
type InMemory struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

// MemoryOption configures InMemory.
type MemoryOption func(*InMemory)

// WithClock overrides the time source used for created/assigned timestamps.
func WithClock(fn func() time.Time) MemoryOption {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewInMemory creates an empty store.
func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{
		state: newMemState(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(&memTx{st: draft, now: s.now}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (s *InMemory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{st: s.state, now: s.now, readOnly: true})
}

type memState struct {
	seq             int64
	vehicles        map[int64]Vehicle
	documents       []Document
	drivers         map[int64]Driver
	clients         map[int64]Client
	routes          map[int64]Route
	history         map[Subject][]HistoryEvent
	hours           []HoursEntry
	alerts          []FatigueAlert
	assignments     map[int64]Assignment
	links           map[Link]struct{}
	users           map[int64]User
	roles           map[int64]Role
	passwordChanges []PasswordChange
}

func newMemState() *memState {
	return &memState{
		vehicles:    make(map[int64]Vehicle),
		drivers:     make(map[int64]Driver),
		clients:     make(map[int64]Client),
		routes:      make(map[int64]Route),
		history:     make(map[Subject][]HistoryEvent),
		assignments: make(map[int64]Assignment),
		links:       make(map[Link]struct{}),
		users:       make(map[int64]User),
		roles:       make(map[int64]Role),
	}
}

func (st *memState) clone() *memState {
	out := newMemState()
	out.seq = st.seq
	for k, v := range st.vehicles {
		out.vehicles[k] = v
	}
	for k, v := range st.drivers {
		out.drivers[k] = v
	}
	for k, v := range st.clients {
		out.clients[k] = v
	}
	for k, v := range st.routes {
		out.routes[k] = v
	}
	for k, v := range st.history {
		out.history[k] = append([]HistoryEvent(nil), v...)
	}
	for k, v := range st.assignments {
		out.assignments[k] = v
	}
	for k := range st.links {
		out.links[k] = struct{}{}
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.roles {
		out.roles[k] = v
	}
	out.documents = append([]Document(nil), st.documents...)
	out.hours = append([]HoursEntry(nil), st.hours...)
	out.alerts = append([]FatigueAlert(nil), st.alerts...)
	out.passwordChanges = append([]PasswordChange(nil), st.passwordChanges...)
	return out
}

type memTx struct {
	st       *memState
	now      func() time.Time
	readOnly bool
}

func (t *memTx) nextID() int64 {
	t.st.seq++
	return t.st.seq
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) stamp() time.Time { return t.now().UTC() }

// --- vehicles ---

func (t *memTx) InsertVehicle(ctx context.Context, v Vehicle) (Vehicle, error) {
	if err := t.writable(); err != nil {
		return Vehicle{}, err
	}
	if taken, _ := t.PlateTaken(ctx, v.Plate, 0); taken {
		return Vehicle{}, fmt.Errorf("%w: plate %s already registered", ErrConflict, v.Plate)
	}
	v.ID = t.nextID()
	v.RegisteredAt = t.stamp()
	t.st.vehicles[v.ID] = v
	return v, nil
}

func (t *memTx) Vehicle(ctx context.Context, id int64) (Vehicle, error) {
	v, ok := t.st.vehicles[id]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
	}
	return v, nil
}

func (t *memTx) LockVehicle(ctx context.Context, id int64) (Vehicle, error) {
	return t.Vehicle(ctx, id)
}

func (t *memTx) Vehicles(ctx context.Context) ([]Vehicle, error) {
	out := make([]Vehicle, 0, len(t.st.vehicles))
	for _, v := range t.st.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveVehicle(ctx context.Context, v Vehicle) (Vehicle, error) {
	if err := t.writable(); err != nil {
		return Vehicle{}, err
	}
	prev, ok := t.st.vehicles[v.ID]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: vehicle %d", ErrNotFound, v.ID)
	}
	v.RegisteredAt = prev.RegisteredAt
	t.st.vehicles[v.ID] = v
	return v, nil
}

func (t *memTx) SetVehicleStatus(ctx context.Context, id int64, status string) error {
	if err := t.writable(); err != nil {
		return err
	}
	v, ok := t.st.vehicles[id]
	if !ok {
		return fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
	}
	v.Status = status
	t.st.vehicles[id] = v
	return nil
}

func (t *memTx) DeleteVehicle(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.vehicles[id]; !ok {
		return fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
	}
	for _, a := range t.st.assignments {
		if a.VehicleID == id {
			return fmt.Errorf("%w: vehicle %d has an active assignment", ErrConflict, id)
		}
	}
	delete(t.st.vehicles, id)
	docs := t.st.documents[:0]
	for _, d := range t.st.documents {
		if d.VehicleID != id {
			docs = append(docs, d)
		}
	}
	t.st.documents = docs
	delete(t.st.history, subjectKey(SubjectVehicle, id))
	return nil
}

func (t *memTx) PlateTaken(ctx context.Context, plate string, exceptID int64) (bool, error) {
	for _, v := range t.st.vehicles {
		if v.ID != exceptID && strings.EqualFold(v.Plate, plate) {
			return true, nil
		}
	}
	return false, nil
}

// --- documents ---

func (t *memTx) InsertDocument(ctx context.Context, d Document) (Document, error) {
	if err := t.writable(); err != nil {
		return Document{}, err
	}
	if _, ok := t.st.vehicles[d.VehicleID]; !ok {
		return Document{}, fmt.Errorf("%w: vehicle %d", ErrNotFound, d.VehicleID)
	}
	d.ID = t.nextID()
	d.UploadedAt = t.stamp()
	t.st.documents = append(t.st.documents, d)
	return d, nil
}

func (t *memTx) Documents(ctx context.Context, vehicleID int64) ([]Document, error) {
	var out []Document
	for i := len(t.st.documents) - 1; i >= 0; i-- {
		if d := t.st.documents[i]; d.VehicleID == vehicleID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *memTx) Document(ctx context.Context, id int64) (Document, error) {
	for _, d := range t.st.documents {
		if d.ID == id {
			return d, nil
		}
	}
	return Document{}, fmt.Errorf("%w: document %d", ErrNotFound, id)
}

// --- drivers ---

func (t *memTx) InsertDriver(ctx context.Context, d Driver) (Driver, error) {
	if err := t.writable(); err != nil {
		return Driver{}, err
	}
	if taken, _ := t.NationalIDTaken(ctx, d.NationalID, 0); taken {
		return Driver{}, fmt.Errorf("%w: national id %s already registered", ErrConflict, d.NationalID)
	}
	d.ID = t.nextID()
	d.CreatedAt = t.stamp()
	t.st.drivers[d.ID] = d
	return d, nil
}

func (t *memTx) Driver(ctx context.Context, id int64) (Driver, error) {
	d, ok := t.st.drivers[id]
	if !ok {
		return Driver{}, fmt.Errorf("%w: driver %d", ErrNotFound, id)
	}
	return d, nil
}

func (t *memTx) LockDriver(ctx context.Context, id int64) (Driver, error) {
	return t.Driver(ctx, id)
}

func (t *memTx) Drivers(ctx context.Context) ([]Driver, error) {
	out := make([]Driver, 0, len(t.st.drivers))
	for _, d := range t.st.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveDriver(ctx context.Context, d Driver) (Driver, error) {
	if err := t.writable(); err != nil {
		return Driver{}, err
	}
	prev, ok := t.st.drivers[d.ID]
	if !ok {
		return Driver{}, fmt.Errorf("%w: driver %d", ErrNotFound, d.ID)
	}
	d.CreatedAt = prev.CreatedAt
	t.st.drivers[d.ID] = d
	return d, nil
}

func (t *memTx) SetDriverStatus(ctx context.Context, id int64, status string) error {
	if err := t.writable(); err != nil {
		return err
	}
	d, ok := t.st.drivers[id]
	if !ok {
		return fmt.Errorf("%w: driver %d", ErrNotFound, id)
	}
	d.Status = status
	t.st.drivers[id] = d
	return nil
}

func (t *memTx) DeleteDriver(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.drivers[id]; !ok {
		return fmt.Errorf("%w: driver %d", ErrNotFound, id)
	}
	for aid, a := range t.st.assignments {
		if a.DriverID == id {
			delete(t.st.assignments, aid)
		}
	}
	for l := range t.st.links {
		if l.DriverID == id {
			delete(t.st.links, l)
		}
	}
	hours := t.st.hours[:0]
	for _, h := range t.st.hours {
		if h.DriverID != id {
			hours = append(hours, h)
		}
	}
	t.st.hours = hours
	alerts := t.st.alerts[:0]
	for _, a := range t.st.alerts {
		if a.DriverID != id {
			alerts = append(alerts, a)
		}
	}
	t.st.alerts = alerts
	delete(t.st.history, subjectKey(SubjectDriver, id))
	delete(t.st.drivers, id)
	return nil
}

func (t *memTx) NationalIDTaken(ctx context.Context, nationalID string, exceptID int64) (bool, error) {
	for _, d := range t.st.drivers {
		if d.ID != exceptID && d.NationalID == nationalID {
			return true, nil
		}
	}
	return false, nil
}

// --- clients ---

func (t *memTx) InsertClient(ctx context.Context, c Client) (Client, error) {
	if err := t.writable(); err != nil {
		return Client{}, err
	}
	if taken, _ := t.ClientNameTaken(ctx, c.Name, 0); taken {
		return Client{}, fmt.Errorf("%w: client %s already exists", ErrConflict, c.Name)
	}
	c.ID = t.nextID()
	c.CreatedAt = t.stamp()
	t.st.clients[c.ID] = c
	return c, nil
}

func (t *memTx) Client(ctx context.Context, id int64) (Client, error) {
	c, ok := t.st.clients[id]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %d", ErrNotFound, id)
	}
	return c, nil
}

func (t *memTx) Clients(ctx context.Context) ([]Client, error) {
	out := make([]Client, 0, len(t.st.clients))
	for _, c := range t.st.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveClient(ctx context.Context, c Client) (Client, error) {
	if err := t.writable(); err != nil {
		return Client{}, err
	}
	prev, ok := t.st.clients[c.ID]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %d", ErrNotFound, c.ID)
	}
	c.CreatedAt = prev.CreatedAt
	t.st.clients[c.ID] = c
	return c, nil
}

func (t *memTx) SetClientStatus(ctx context.Context, id int64, status string) error {
	if err := t.writable(); err != nil {
		return err
	}
	c, ok := t.st.clients[id]
	if !ok {
		return fmt.Errorf("%w: client %d", ErrNotFound, id)
	}
	c.Status = status
	t.st.clients[id] = c
	return nil
}

func (t *memTx) DeleteClient(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.clients[id]; !ok {
		return fmt.Errorf("%w: client %d", ErrNotFound, id)
	}
	if ref, _ := t.ClientReferenced(ctx, id); ref {
		return fmt.Errorf("%w: client %d is referenced by routes", ErrConflict, id)
	}
	delete(t.st.clients, id)
	return nil
}

func (t *memTx) ClientNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	for _, c := range t.st.clients {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ClientReferenced(ctx context.Context, id int64) (bool, error) {
	for _, r := range t.st.routes {
		if r.ClientID == id {
			return true, nil
		}
	}
	return false, nil
}

// --- routes ---

func (t *memTx) InsertRoute(ctx context.Context, r Route) (Route, error) {
	if err := t.writable(); err != nil {
		return Route{}, err
	}
	r.ID = t.nextID()
	r.CreatedAt = t.stamp()
	t.st.routes[r.ID] = r
	return r, nil
}

func (t *memTx) Route(ctx context.Context, id int64) (Route, error) {
	r, ok := t.st.routes[id]
	if !ok {
		return Route{}, fmt.Errorf("%w: route %d", ErrNotFound, id)
	}
	return r, nil
}

func (t *memTx) Routes(ctx context.Context) ([]Route, error) {
	out := make([]Route, 0, len(t.st.routes))
	for _, r := range t.st.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveRoute(ctx context.Context, r Route) (Route, error) {
	if err := t.writable(); err != nil {
		return Route{}, err
	}
	prev, ok := t.st.routes[r.ID]
	if !ok {
		return Route{}, fmt.Errorf("%w: route %d", ErrNotFound, r.ID)
	}
	r.CreatedAt = prev.CreatedAt
	t.st.routes[r.ID] = r
	return r, nil
}

func (t *memTx) DeleteRoute(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.routes[id]; !ok {
		return fmt.Errorf("%w: route %d", ErrNotFound, id)
	}
	if ref, _ := t.RouteReferenced(ctx, id); ref {
		return fmt.Errorf("%w: route %d has assignments", ErrConflict, id)
	}
	delete(t.st.routes, id)
	return nil
}

func (t *memTx) RouteReferenced(ctx context.Context, id int64) (bool, error) {
	for _, a := range t.st.assignments {
		if a.RouteID == id {
			return true, nil
		}
	}
	return false, nil
}

// --- history ---

// subjectKey namespaces history by subject and id inside a single map.
func subjectKey(subject Subject, id int64) Subject {
	return Subject(fmt.Sprintf("%s/%d", subject, id))
}

func (t *memTx) AppendHistory(ctx context.Context, subject Subject, subjectID int64, description string) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := subjectKey(subject, subjectID)
	t.st.history[key] = append(t.st.history[key], HistoryEvent{
		ID:          t.nextID(),
		SubjectID:   subjectID,
		Description: description,
		CreatedAt:   t.stamp(),
	})
	return nil
}

func (t *memTx) History(ctx context.Context, subject Subject, subjectID int64) ([]HistoryEvent, error) {
	events := t.st.history[subjectKey(subject, subjectID)]
	out := make([]HistoryEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
	}
	return out, nil
}

// --- hours ---

func (t *memTx) InsertHours(ctx context.Context, e HoursEntry) (HoursEntry, error) {
	if err := t.writable(); err != nil {
		return HoursEntry{}, err
	}
	if _, ok := t.st.drivers[e.DriverID]; !ok {
		return HoursEntry{}, fmt.Errorf("%w: driver %d", ErrNotFound, e.DriverID)
	}
	e.ID = t.nextID()
	e.CreatedAt = t.stamp()
	t.st.hours = append(t.st.hours, e)
	return e, nil
}

func (t *memTx) HoursOn(ctx context.Context, driverID int64, date string) ([]HoursEntry, error) {
	var out []HoursEntry
	for _, h := range t.st.hours {
		if h.DriverID == driverID && h.Date == date {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memTx) HoursByDriver(ctx context.Context, driverID int64) ([]HoursEntry, error) {
	var out []HoursEntry
	for _, h := range t.st.hours {
		if h.DriverID == driverID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return laterEntry(out[i], out[j]) })
	return out, nil
}

func (t *memTx) LatestHours(ctx context.Context) ([]HoursEntry, error) {
	latest := make(map[int64]HoursEntry)
	for _, h := range t.st.hours {
		cur, ok := latest[h.DriverID]
		if !ok || laterEntry(h, cur) {
			latest[h.DriverID] = h
		}
	}
	out := make([]HoursEntry, 0, len(latest))
	for _, h := range latest {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

// laterEntry orders by date, end time, then insertion.
func laterEntry(a, b HoursEntry) bool {
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	if a.End != b.End {
		return a.End > b.End
	}
	return a.ID > b.ID
}

// --- alerts ---

func (t *memTx) InsertAlert(ctx context.Context, a FatigueAlert) (FatigueAlert, error) {
	if err := t.writable(); err != nil {
		return FatigueAlert{}, err
	}
	if _, ok := t.st.drivers[a.DriverID]; !ok {
		return FatigueAlert{}, fmt.Errorf("%w: driver %d", ErrNotFound, a.DriverID)
	}
	a.ID = t.nextID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.stamp()
	}
	t.st.alerts = append(t.st.alerts, a)
	return a, nil
}

func (t *memTx) AlertsSince(ctx context.Context, driverID int64, since time.Time) (int, error) {
	n := 0
	for _, a := range t.st.alerts {
		if a.DriverID == driverID && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Alerts(ctx context.Context, driverID int64) ([]FatigueAlert, error) {
	var out []FatigueAlert
	for i := len(t.st.alerts) - 1; i >= 0; i-- {
		if a := t.st.alerts[i]; a.DriverID == driverID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- assignments ---

func (t *memTx) InsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if err := t.writable(); err != nil {
		return Assignment{}, err
	}
	for _, cur := range t.st.assignments {
		if cur.VehicleID == a.VehicleID || cur.DriverID == a.DriverID {
			return Assignment{}, fmt.Errorf("%w: vehicle or driver already assigned", ErrConflict)
		}
	}
	a.ID = t.nextID()
	if a.AssignedAt.IsZero() {
		a.AssignedAt = t.stamp()
	}
	t.st.assignments[a.ID] = a
	return a, nil
}

func (t *memTx) LockAssignment(ctx context.Context, id int64) (Assignment, error) {
	a, ok := t.st.assignments[id]
	if !ok {
		return Assignment{}, fmt.Errorf("%w: assignment %d", ErrNotFound, id)
	}
	return a, nil
}

func (t *memTx) SaveAssignment(ctx context.Context, a Assignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.assignments[a.ID]; !ok {
		return fmt.Errorf("%w: assignment %d", ErrNotFound, a.ID)
	}
	t.st.assignments[a.ID] = a
	return nil
}

func (t *memTx) DeleteAssignment(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.assignments[id]; !ok {
		return fmt.Errorf("%w: assignment %d", ErrNotFound, id)
	}
	delete(t.st.assignments, id)
	return nil
}

func (t *memTx) AssignmentView(ctx context.Context, id int64) (AssignmentView, error) {
	a, ok := t.st.assignments[id]
	if !ok {
		return AssignmentView{}, fmt.Errorf("%w: assignment %d", ErrNotFound, id)
	}
	return t.view(a), nil
}

func (t *memTx) AssignmentViews(ctx context.Context) ([]AssignmentView, error) {
	out := make([]AssignmentView, 0, len(t.st.assignments))
	for _, a := range t.st.assignments {
		out = append(out, t.view(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) view(a Assignment) AssignmentView {
	v := AssignmentView{Assignment: a, Status: DriverEnRoute}
	v.Plate = t.st.vehicles[a.VehicleID].Plate
	v.DriverName = t.st.drivers[a.DriverID].Name
	r := t.st.routes[a.RouteID]
	v.Origin, v.Destination = r.Origin, r.Destination
	v.ClientName = t.st.clients[a.ClientID].Name
	return v
}

func (t *memTx) InsertLink(ctx context.Context, l Link) error {
	if err := t.writable(); err != nil {
		return err
	}
	for cur := range t.st.links {
		if cur.DriverID == l.DriverID {
			return fmt.Errorf("%w: driver %d already linked to a route", ErrConflict, l.DriverID)
		}
	}
	t.st.links[l] = struct{}{}
	return nil
}

func (t *memTx) DeleteLink(ctx context.Context, l Link) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.st.links, l)
	return nil
}

func (t *memTx) DriverLinked(ctx context.Context, driverID int64, except Link) (bool, error) {
	for l := range t.st.links {
		if l.DriverID == driverID && l != except {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) VehicleAssigned(ctx context.Context, vehicleID, exceptAssignmentID int64) (bool, error) {
	for _, a := range t.st.assignments {
		if a.VehicleID == vehicleID && a.ID != exceptAssignmentID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) DriverAssigned(ctx context.Context, driverID, exceptAssignmentID int64) (bool, error) {
	for _, a := range t.st.assignments {
		if a.DriverID == driverID && a.ID != exceptAssignmentID {
			return true, nil
		}
	}
	return false, nil
}

// --- users ---

func (t *memTx) withRole(u User) User {
	if r, ok := t.st.roles[u.RoleID]; ok {
		u.RoleName = r.Name
	} else {
		u.RoleName = ""
	}
	return u
}

func (t *memTx) InsertUser(ctx context.Context, u User) (User, error) {
	if err := t.writable(); err != nil {
		return User{}, err
	}
	if taken, _ := t.EmailTaken(ctx, u.Email, 0); taken {
		return User{}, fmt.Errorf("%w: email %s already registered", ErrConflict, u.Email)
	}
	if _, ok := t.st.roles[u.RoleID]; !ok {
		return User{}, fmt.Errorf("%w: role %d", ErrNotFound, u.RoleID)
	}
	u.ID = t.nextID()
	u.CreatedAt = t.stamp()
	u.UpdatedAt = u.CreatedAt
	t.st.users[u.ID] = u
	return t.withRole(u), nil
}

func (t *memTx) User(ctx context.Context, id int64) (User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return t.withRole(u), nil
}

func (t *memTx) UserByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, email) {
			return t.withRole(u), nil
		}
	}
	return User{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (t *memTx) Users(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(t.st.users))
	for _, u := range t.st.users {
		out = append(out, t.withRole(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveUser(ctx context.Context, u User) (User, error) {
	if err := t.writable(); err != nil {
		return User{}, err
	}
	prev, ok := t.st.users[u.ID]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", ErrNotFound, u.ID)
	}
	if _, ok := t.st.roles[u.RoleID]; !ok {
		return User{}, fmt.Errorf("%w: role %d", ErrNotFound, u.RoleID)
	}
	u.CreatedAt = prev.CreatedAt
	u.UpdatedAt = t.stamp()
	t.st.users[u.ID] = u
	return t.withRole(u), nil
}

func (t *memTx) SetUserStatus(ctx context.Context, id int64, status string) error {
	if err := t.writable(); err != nil {
		return err
	}
	u, ok := t.st.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	u.Status = status
	u.UpdatedAt = t.stamp()
	t.st.users[id] = u
	return nil
}

func (t *memTx) DeleteUser(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.users[id]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	delete(t.st.users, id)
	return nil
}

func (t *memTx) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	for _, u := range t.st.users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) RecordPasswordChange(ctx context.Context, c PasswordChange) error {
	if err := t.writable(); err != nil {
		return err
	}
	if c.ChangedAt.IsZero() {
		c.ChangedAt = t.stamp()
	}
	t.st.passwordChanges = append(t.st.passwordChanges, c)
	return nil
}

// --- roles ---

func (t *memTx) InsertRole(ctx context.Context, r Role) (Role, error) {
	if err := t.writable(); err != nil {
		return Role{}, err
	}
	if _, err := t.RoleByName(ctx, r.Name); err == nil {
		return Role{}, fmt.Errorf("%w: role %s already exists", ErrConflict, r.Name)
	}
	r.ID = t.nextID()
	r.CreatedAt = t.stamp()
	r.UpdatedAt = r.CreatedAt
	t.st.roles[r.ID] = r
	return r, nil
}

func (t *memTx) Role(ctx context.Context, id int64) (Role, error) {
	r, ok := t.st.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	return r, nil
}

func (t *memTx) RoleByName(ctx context.Context, name string) (Role, error) {
	for _, r := range t.st.roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

func (t *memTx) Roles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(t.st.roles))
	for _, r := range t.st.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveRole(ctx context.Context, r Role) (Role, error) {
	if err := t.writable(); err != nil {
		return Role{}, err
	}
	prev, ok := t.st.roles[r.ID]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", ErrNotFound, r.ID)
	}
	if other, err := t.RoleByName(ctx, r.Name); err == nil && other.ID != r.ID {
		return Role{}, fmt.Errorf("%w: role %s already exists", ErrConflict, r.Name)
	}
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = t.stamp()
	t.st.roles[r.ID] = r
	return r, nil
}

func (t *memTx) DeleteRole(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.roles[id]; !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	if used, _ := t.RoleInUse(ctx, id); used {
		return fmt.Errorf("%w: role %d is assigned to users", ErrConflict, id)
	}
	delete(t.st.roles, id)
	return nil
}

func (t *memTx) RoleInUse(ctx context.Context, id int64) (bool, error) {
	for _, u := range t.st.users {
		if u.RoleID == id {
			return true, nil
		}
	}
	return false, nil
}
