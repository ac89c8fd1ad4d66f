package models

import "time"

// City is one municipality tracked by the ingester. The banana key is the
// vendor-agnostic identity: lowercase alphanumeric name + uppercase state
// code, e.g. "paloaltoCA".
type City struct {
	Banana     string     `json:"banana"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Vendor     Vendor     `json:"vendor"`
	Slug       string     `json:"slug"`
	County     string     `json:"county,omitempty"`
	Status     CityStatus `json:"status"`
	Zipcodes   []Zipcode  `json:"zipcodes,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Zipcode links a city to a postal code. A city has at most one primary.
type Zipcode struct {
	Banana    string `json:"banana"`
	Zipcode   string `json:"zipcode"`
	IsPrimary bool   `json:"is_primary"`
}
