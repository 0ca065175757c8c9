package resolve

import (
	"fmt"
	"sort"

	"starfleet/internal/index"
)

// Target is one (account, region) pair a worker must execute against.
type Target struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	Region      string `json:"region"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.AccountID, t.Region)
}

// Resolve evaluates the rule against the index and returns the ordered target
// set: accounts ascending by ID, regions ascending lexicographically within
// an account. Re-running against an unchanged index yields an identical
// sequence.
//
// An account with zero applicable regions under the rule contributes zero
// targets; an empty result is not an error.
func Resolve(rule Rule, idx *index.Index) []Target {
	candidates := matchFilter(rule.Include, idx, true)

	if rule.IncludeOrgRoot {
		if root, ok := idx.OrgRoot(); ok {
			candidates[root.ID] = root
		}
	}

	for id := range matchFilter(rule.Exclude, idx, false) {
		delete(candidates, id)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var targets []Target
	for _, id := range ids {
		account := candidates[id]
		for _, region := range applicableRegions(rule, account) {
			targets = append(targets, Target{
				AccountID:   account.ID,
				AccountName: account.Name,
				Region:      region,
			})
		}
	}
	return targets
}

// matchFilter returns the accounts matched by the filter, keyed by ID. Filter
// fields are unioned. zeroMeansAll controls the empty-filter semantics:
// an empty Include matches everything, an empty Exclude matches nothing.
func matchFilter(f Filter, idx *index.Index, zeroMeansAll bool) map[string]index.Account {
	matched := make(map[string]index.Account)

	if f.IsZero() {
		if zeroMeansAll {
			for _, a := range idx.AllAccounts() {
				matched[a.ID] = a
			}
		}
		return matched
	}

	add := func(accounts []index.Account) {
		for _, a := range accounts {
			matched[a.ID] = a
		}
	}

	add(idx.AccountsByIDs(f.Accounts))
	add(idx.AccountsByNames(f.Names))
	for name, value := range f.Tags {
		add(idx.AccountsByTag(name, value))
	}
	for _, ou := range f.OrgUnits {
		add(idx.AccountsByOU(ou))
	}
	for _, t := range f.Types {
		add(idx.AccountsByType(t))
	}

	return matched
}

// applicableRegions intersects the rule's requested regions with the
// account's enabled regions, sorted ascending.
func applicableRegions(rule Rule, account index.Account) []string {
	var regions []string
	if rule.AllRegions || len(rule.Regions) == 0 {
		regions = append(regions, account.Regions...)
	} else {
		for _, r := range rule.Regions {
			if account.HasRegion(r) {
				regions = append(regions, r)
			}
		}
	}
	sort.Strings(regions)
	return dedupe(regions)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}
