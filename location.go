package reseda

import "strings"

// Location is a relay the client can connect to.
type Location struct {
	ID       string `json:"id" yaml:"id"`
	Hostname string `json:"hostname" yaml:"hostname"`
	Country  string `json:"country,omitempty" yaml:"country,omitempty"`
}

// Identity is the authenticated user on whose behalf a tunnel is opened.
type Identity struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// FindByHost returns the location whose hostname equals host, ignoring case.
func FindByHost(pool []Location, host string) (Location, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Location{}, false
	}
	for _, loc := range pool {
		if strings.EqualFold(loc.Hostname, host) {
			return loc, true
		}
	}
	return Location{}, false
}

// FindByID returns the location with the given id.
func FindByID(pool []Location, id string) (Location, bool) {
	for _, loc := range pool {
		if loc.ID == id {
			return loc, true
		}
	}
	return Location{}, false
}
