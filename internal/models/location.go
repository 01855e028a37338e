package models

import "time"

// Address is the structured address hierarchy of a location.
type Address struct {
	Address      string
	Neighborhood string
	PostalCode   string
	City         string
	Subdivision  string
	Region       string
	Country      string
}

// Location is a named place referenced by entries. Geocoded holds the
// immutable copy written by the place provider; Current is user-editable.
type Location struct {
	ID      string
	OwnerID string

	Name      string
	Latitude  *float64
	Longitude *float64

	Geocoded Address
	Current  Address

	// PlaceID is the external place-provider identifier, if known.
	PlaceID string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	Marks
}
