package fleet

import (
	"context"
	"time"
)

// Store runs units of work against the fleet data. A non-nil error returned
// by fn discards every write made through its Tx.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the repository surface visible inside a unit of work.
type Tx interface {
	VehicleRepo
	DocumentRepo
	DriverRepo
	ClientRepo
	RouteRepo
	HistoryRepo
	HoursRepo
	AlertRepo
	AssignmentRepo
	UserRepo
	RoleRepo
}

type VehicleRepo interface {
	InsertVehicle(ctx context.Context, v Vehicle) (Vehicle, error)
	Vehicle(ctx context.Context, id int64) (Vehicle, error)
	// LockVehicle reads the row and holds it until the unit of work ends.
	LockVehicle(ctx context.Context, id int64) (Vehicle, error)
	Vehicles(ctx context.Context) ([]Vehicle, error)
	SaveVehicle(ctx context.Context, v Vehicle) (Vehicle, error)
	SetVehicleStatus(ctx context.Context, id int64, status string) error
	DeleteVehicle(ctx context.Context, id int64) error
	PlateTaken(ctx context.Context, plate string, exceptID int64) (bool, error)
}

type DocumentRepo interface {
	InsertDocument(ctx context.Context, d Document) (Document, error)
	Documents(ctx context.Context, vehicleID int64) ([]Document, error)
	Document(ctx context.Context, id int64) (Document, error)
}

type DriverRepo interface {
	InsertDriver(ctx context.Context, d Driver) (Driver, error)
	Driver(ctx context.Context, id int64) (Driver, error)
	LockDriver(ctx context.Context, id int64) (Driver, error)
	Drivers(ctx context.Context) ([]Driver, error)
	SaveDriver(ctx context.Context, d Driver) (Driver, error)
	SetDriverStatus(ctx context.Context, id int64, status string) error
	// DeleteDriver removes the driver with its linkage, assignments, hours,
	// alerts and history.
	DeleteDriver(ctx context.Context, id int64) error
	NationalIDTaken(ctx context.Context, nationalID string, exceptID int64) (bool, error)
}

type ClientRepo interface {
	InsertClient(ctx context.Context, c Client) (Client, error)
	Client(ctx context.Context, id int64) (Client, error)
	Clients(ctx context.Context) ([]Client, error)
	SaveClient(ctx context.Context, c Client) (Client, error)
	SetClientStatus(ctx context.Context, id int64, status string) error
	DeleteClient(ctx context.Context, id int64) error
	// ClientNameTaken compares names case-insensitively.
	ClientNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	ClientReferenced(ctx context.Context, id int64) (bool, error)
}

type RouteRepo interface {
	InsertRoute(ctx context.Context, r Route) (Route, error)
	Route(ctx context.Context, id int64) (Route, error)
	Routes(ctx context.Context) ([]Route, error)
	SaveRoute(ctx context.Context, r Route) (Route, error)
	DeleteRoute(ctx context.Context, id int64) error
	RouteReferenced(ctx context.Context, id int64) (bool, error)
}

type HistoryRepo interface {
	AppendHistory(ctx context.Context, subject Subject, subjectID int64, description string) error
	History(ctx context.Context, subject Subject, subjectID int64) ([]HistoryEvent, error)
}

type HoursRepo interface {
	InsertHours(ctx context.Context, e HoursEntry) (HoursEntry, error)
	HoursOn(ctx context.Context, driverID int64, date string) ([]HoursEntry, error)
	HoursByDriver(ctx context.Context, driverID int64) ([]HoursEntry, error)
	// LatestHours returns each driver's most recent entry by date, then end time.
	LatestHours(ctx context.Context) ([]HoursEntry, error)
}

type AlertRepo interface {
	InsertAlert(ctx context.Context, a FatigueAlert) (FatigueAlert, error)
	AlertsSince(ctx context.Context, driverID int64, since time.Time) (int, error)
	Alerts(ctx context.Context, driverID int64) ([]FatigueAlert, error)
}

type AssignmentRepo interface {
	InsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
	LockAssignment(ctx context.Context, id int64) (Assignment, error)
	SaveAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, id int64) error
	AssignmentView(ctx context.Context, id int64) (AssignmentView, error)
	AssignmentViews(ctx context.Context) ([]AssignmentView, error)

	InsertLink(ctx context.Context, l Link) error
	DeleteLink(ctx context.Context, l Link) error
	// DriverLinked reports a linkage for the driver other than except.
	DriverLinked(ctx context.Context, driverID int64, except Link) (bool, error)
	VehicleAssigned(ctx context.Context, vehicleID, exceptAssignmentID int64) (bool, error)
	DriverAssigned(ctx context.Context, driverID, exceptAssignmentID int64) (bool, error)
}

type UserRepo interface {
	InsertUser(ctx context.Context, u User) (User, error)
	User(ctx context.Context, id int64) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	Users(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) (User, error)
	SetUserStatus(ctx context.Context, id int64, status string) error
	DeleteUser(ctx context.Context, id int64) error
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	RecordPasswordChange(ctx context.Context, c PasswordChange) error
}

type RoleRepo interface {
	InsertRole(ctx context.Context, r Role) (Role, error)
	Role(ctx context.Context, id int64) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	Roles(ctx context.Context) ([]Role, error)
	SaveRole(ctx context.Context, r Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	RoleInUse(ctx context.Context, id int64) (bool, error)
}
