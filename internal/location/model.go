package location

import (
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
)

// UserLocation is a user's last-known position. Each write replaces the previous one.
type UserLocation struct {
	UserID    string     `json:"userId"`
	Position  *geo.Point `json:"position,omitempty"`
	Accuracy  *float64   `json:"accuracy"`
	IsSharing bool       `json:"isSharing"`
	UpdatedAt time.Time  `json:"lastUpdatedAt"`
}

// Visible reports whether the location may appear in proximity results fresh since since.
func (l *UserLocation) Visible(since time.Time) bool {
	return l != nil && l.IsSharing && l.Position != nil && !l.UpdatedAt.Before(since)
}

func (l *UserLocation) clone() *UserLocation {
	c := *l
	if l.Position != nil {
		p := *l.Position
		c.Position = &p
	}
	if l.Accuracy != nil {
		a := *l.Accuracy
		c.Accuracy = &a
	}
	return &c
}

// Update is the write-path input. A nil IsSharing means sharing on.
type Update struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	IsSharing *bool
}

type Coordinates struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

// Snapshot is the public view of a stored location.
type Snapshot struct {
	UserID        string       `json:"userId"`
	Location      *Coordinates `json:"location"`
	IsSharing     bool         `json:"isSharing"`
	LastUpdatedAt *time.Time   `json:"lastUpdatedAt"`
}

func (l *UserLocation) Snapshot() Snapshot {
	s := Snapshot{UserID: l.UserID, IsSharing: l.IsSharing, LastUpdatedAt: timePtr(l.UpdatedAt)}
	if l.Position != nil {
		s.Location = &Coordinates{Latitude: l.Position.Lat, Longitude: l.Position.Lng, Accuracy: l.Accuracy}
	}
	return s
}

type Settings struct {
	IsSharing   bool           `json:"isSharing"`
	Accuracy    *float64       `json:"accuracy"`
	LastUpdated *time.Time     `json:"lastUpdated"`
	Privacy     map[string]any `json:"privacy"`
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	IsSharing *bool
	Privacy   map[string]any
}

type SettingsResult struct {
	IsSharing bool           `json:"isSharing"`
	Privacy   map[string]any `json:"privacy"`
}

type History struct {
	CurrentLocation *Coordinates `json:"currentLocation"`
	LastUpdated     *time.Time   `json:"lastUpdated"`
	SharingEnabled  bool         `json:"sharingEnabled"`
	Days            int          `json:"days"`
}

type NearbyUser struct {
	UserID         string      `json:"userId"`
	FirstName      string      `json:"firstName"`
	LastName       string      `json:"lastName"`
	ProfilePicture *string     `json:"profilePicture"`
	Location       Coordinates `json:"location"`
	LastSeen       time.Time   `json:"lastSeen"`
	DistanceMeters int         `json:"distance"`
}

// Nearby query statuses.
const (
	StatusOK              = "ok"
	StatusSharingDisabled = "sharing_disabled"
	StatusNoLocation      = "no_location"
)

type NearbyResult struct {
	Users   []NearbyUser `json:"users"`
	Total   int          `json:"total"`
	Radius  float64      `json:"radius"`
	Limit   int          `json:"limit"`
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
