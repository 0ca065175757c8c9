package index

import "time"

// OrgUnit is one node in an account's organizational parent chain.
type OrgUnit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Account is one cloud account as recorded in the account inventory.
//
// Accounts are immutable once loaded into an Index for a run; a refresh is a
// full reload, never an incremental patch.
type Account struct {
	// ID is the unique cloud account identifier (12-digit string).
	ID string `json:"id"`

	// Name is the human-facing account alias. Lookups are case-insensitive.
	Name string `json:"name"`

	// Type classifies the account (e.g. "standard", "sandbox", "org-root").
	Type string `json:"type,omitempty"`

	// Tags holds the account's tag set. Tag name and value lookups are
	// case-insensitive.
	Tags map[string]string `json:"tags,omitempty"`

	// OrgUnits is the parent chain from the account's immediate OU up to the
	// organization root (the last entry is the ROOT node).
	OrgUnits []OrgUnit `json:"org_units,omitempty"`

	// Regions lists the regions this account is enabled in, sorted ascending.
	Regions []string `json:"regions,omitempty"`

	// Joined is when the account joined the organization.
	Joined time.Time `json:"joined,omitempty"`
}

// HasRegion reports whether the account is enabled in the given region.
func (a Account) HasRegion(region string) bool {
	for _, r := range a.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// InOrgUnit reports whether the given selector matches any OU in the
// account's parent chain, by ID or by name, case-insensitively.
func (a Account) InOrgUnit(selector string) bool {
	sel := normalize(selector)
	for _, ou := range a.OrgUnits {
		if normalize(ou.ID) == sel || normalize(ou.Name) == sel {
			return true
		}
	}
	return false
}
