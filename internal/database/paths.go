package database

import "fmt"

// UserPaths are the document locations owned by one user
type UserPaths struct {
	Base        string
	Target      string
	Comparables string
	Saved       string
}

func PathsForUser(uid string) UserPaths {
	base := fmt.Sprintf("users/%s", uid)
	return UserPaths{
		Base:        base,
		Target:      base + "/data/valuation_active",
		Comparables: base + "/comparables",
		Saved:       base + "/saved_valuations",
	}
}

func (p UserPaths) Comparable(id string) string {
	return p.Comparables + "/" + id
}

func (p UserPaths) SavedValuation(id string) string {
	return p.Saved + "/" + id
}
