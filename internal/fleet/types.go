package fleet

import "time"

// Vehicle operational statuses.
const (
	VehicleOperational = "operativo"
	VehicleMaintenance = "en_mantenimiento"
	VehicleEnRoute     = "en_ruta"
	VehicleInactive    = "inactivo"
)

// Lifecycle statuses shared by drivers, clients, users and roles.
const (
	StatusActive   = "activo"
	StatusInactive = "inactivo"

	// DriverEnRoute is only ever set by the assignment machine.
	DriverEnRoute = "en_ruta"
)

// Fatigue alert sources.
const (
	AlertAutomatic = "automatic"
	AlertManual    = "manual"
)

// Subject selects which history trail an event belongs to.
type Subject string

const (
	SubjectVehicle Subject = "vehicle"
	SubjectDriver  Subject = "driver"
)

type Vehicle struct {
	ID           int64     `json:"id"`
	Plate        string    `json:"plate"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Capacity     float64   `json:"capacity"`
	FuelType     string    `json:"fuel_type,omitempty"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Document is metadata about a file stored elsewhere.
type Document struct {
	ID         int64     `json:"id"`
	VehicleID  int64     `json:"vehicle_id"`
	DocType    string    `json:"doc_type"`
	FileURL    string    `json:"file_url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Driver struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	NationalID    string    `json:"national_id"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Route struct {
	ID             int64     `json:"id"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DistanceKm     float64   `json:"distance_km"`
	EstimatedHours float64   `json:"estimated_hours"`
	ClientID       int64     `json:"client_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HoursEntry is one driving interval. Date is YYYY-MM-DD, Start/End are HH:MM.
type HoursEntry struct {
	ID         int64     `json:"id"`
	DriverID   int64     `json:"driver_id"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Hours      float64   `json:"hours"`
	Notes      string    `json:"notes,omitempty"`
	RecordedBy int64     `json:"recorded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type FatigueAlert struct {
	ID          int64     `json:"id"`
	DriverID    int64     `json:"driver_id"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	RecordedBy  int64     `json:"recorded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Assignment struct {
	ID         int64     `json:"id"`
	VehicleID  int64     `json:"vehicle_id"`
	DriverID   int64     `json:"driver_id"`
	RouteID    int64     `json:"route_id"`
	ClientID   int64     `json:"client_id"`
	AssignedAt time.Time `json:"assigned_at"`
	RecordedBy int64     `json:"recorded_by,omitempty"`
}

// AssignmentView joins the display fields of everything an assignment references.
type AssignmentView struct {
	Assignment
	Plate       string `json:"plate"`
	DriverName  string `json:"driver_name"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	ClientName  string `json:"client_name"`
	Status      string `json:"status"`
}

// Link is a driver to route linkage row.
type Link struct {
	DriverID int64
	RouteID  int64
}

type HistoryEvent struct {
	ID          int64     `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	RoleID             int64     `json:"role_id,omitempty"`
	RoleName           string    `json:"role_name,omitempty"`
	Status             string    `json:"status"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PasswordChange records a credential rotation.
type PasswordChange struct {
	UserID    int64
	OldHash   string
	NewHash   string
	ChangedAt time.Time
}

// FatigueEvaluation is the outcome of checking a driver's day against the
// fatigue threshold.
type FatigueEvaluation struct {
	Date       string        `json:"date"`
	DailyTotal float64       `json:"daily_total"`
	Threshold  float64       `json:"threshold"`
	Alert      *FatigueAlert `json:"alert,omitempty"`
	RestUntil  *time.Time    `json:"rest_until,omitempty"`
	ActiveNow  bool          `json:"active_now"`
}
