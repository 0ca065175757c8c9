// Package resolve turns a worker's declared targeting rule into the concrete
// ordered set of (account, region) targets to act on.
package resolve

// Filter selects accounts by attribute. Fields within one filter are unioned:
// an account matches if any field matches it. An empty filter matches nothing
// when used as Exclude, and (by convention of Rule) all accounts when used as
// an empty Include.
type Filter struct {
	// Accounts selects by explicit account ID.
	Accounts []string `yaml:"accounts,omitempty"`

	// Names selects by account alias (case-insensitive).
	Names []string `yaml:"names,omitempty"`

	// Tags selects by tag equality, name=value (case-insensitive).
	Tags map[string]string `yaml:"tags,omitempty"`

	// OrgUnits selects accounts whose OU parent chain contains the given
	// OU, by ID or name (case-insensitive).
	OrgUnits []string `yaml:"org_units,omitempty"`

	// Types selects by account classification.
	Types []string `yaml:"types,omitempty"`
}

// IsZero reports whether no selector field is set.
func (f Filter) IsZero() bool {
	return len(f.Accounts) == 0 && len(f.Names) == 0 && len(f.Tags) == 0 &&
		len(f.OrgUnits) == 0 && len(f.Types) == 0
}

// Rule is a worker's declared targeting: which accounts, and which regions
// within them. Exclude always takes precedence over Include for a given
// account.
type Rule struct {
	// Include selects candidate accounts. A zero Include means every account
	// in the index.
	Include Filter `yaml:"include,omitempty"`

	// Exclude removes accounts from the candidate set. A zero Exclude removes
	// nothing.
	Exclude Filter `yaml:"exclude,omitempty"`

	// Regions is the explicit region list to fan out to, intersected with
	// each account's enabled regions.
	Regions []string `yaml:"regions,omitempty"`

	// AllRegions expands each account to every region it is enabled in.
	// Mutually exclusive with Regions.
	AllRegions bool `yaml:"all_regions,omitempty"`

	// IncludeOrgRoot additionally targets the organization root account, if
	// the index marks one. Exclusion still applies.
	IncludeOrgRoot bool `yaml:"include_org_root,omitempty"`
}
