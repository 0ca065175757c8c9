// Package index provides the queryable account inventory snapshot that
// targeting resolution reads from.
//
// An Index is loaded once per run from a backing Source (flat file, SQL
// database) and is read-only afterwards; every query returns accounts in
// ascending ID order so resolved target order is reproducible across runs.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable indicates the backing source could not be read. It is fatal
// to the whole run: no targets can be resolved, so the run aborts before any
// dispatch happens.
var ErrUnavailable = errors.New("account index unavailable")

// Source is a durable store the Index loads from.
type Source interface {
	// Key identifies the backing location. Concurrent loads with the same key
	// are deduplicated.
	Key() string

	// Fetch reads every account record from the store.
	Fetch(ctx context.Context) ([]Account, error)
}

// Index is an immutable snapshot of the account inventory with precomputed
// lookup maps. It exposes no mutation methods.
type Index struct {
	accounts map[string]Account
	ids      []string // sorted ascending

	aliases map[string]string              // normalized name -> account ID
	tags    map[string]map[string][]string // normalized tag name -> value -> IDs
	ous     map[string][]string            // normalized OU id/name -> IDs
	regions map[string][]string            // region -> IDs

	orgRootID string
}

// Load fetches all accounts from the source and builds the snapshot. Source
// failures are reported as ErrUnavailable.
func Load(ctx context.Context, src Source) (*Index, error) {
	accounts, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, src.Key(), err)
	}
	return build(accounts)
}

// Loader deduplicates concurrent Load calls against the same source key, so
// that commands sharing one process share one fetch.
type Loader struct {
	group singleflight.Group
}

func (l *Loader) Load(ctx context.Context, src Source) (*Index, error) {
	v, err, _ := l.group.Do(src.Key(), func() (any, error) {
		return Load(ctx, src)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func build(accounts []Account) (*Index, error) {
	idx := &Index{
		accounts: make(map[string]Account, len(accounts)),
		aliases:  make(map[string]string, len(accounts)),
		tags:     make(map[string]map[string][]string),
		ous:      make(map[string][]string),
		regions:  make(map[string][]string),
	}

	for _, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: account record with empty id", ErrUnavailable)
		}
		if _, dup := idx.accounts[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate account id %s", ErrUnavailable, a.ID)
		}
		idx.accounts[a.ID] = a
		idx.ids = append(idx.ids, a.ID)
		idx.aliases[normalize(a.Name)] = a.ID

		for name, value := range a.Tags {
			n, v := normalize(name), normalize(value)
			if idx.tags[n] == nil {
				idx.tags[n] = make(map[string][]string)
			}
			idx.tags[n][v] = append(idx.tags[n][v], a.ID)
		}

		for _, ou := range a.OrgUnits {
			for _, sel := range []string{normalize(ou.ID), normalize(ou.Name)} {
				if sel == "" {
					continue
				}
				idx.ous[sel] = appendUnique(idx.ous[sel], a.ID)
			}
		}

		for _, r := range a.Regions {
			idx.regions[r] = append(idx.regions[r], a.ID)
		}

		if a.Type == "org-root" {
			idx.orgRootID = a.ID
		}
	}

	sort.Strings(idx.ids)
	for _, vals := range idx.tags {
		for _, ids := range vals {
			sort.Strings(ids)
		}
	}
	for _, ids := range idx.ous {
		sort.Strings(ids)
	}
	for _, ids := range idx.regions {
		sort.Strings(ids)
	}

	return idx, nil
}

// Len returns the number of accounts in the snapshot.
func (idx *Index) Len() int { return len(idx.ids) }

// Account returns the account with the given ID, if present.
func (idx *Index) Account(id string) (Account, bool) {
	a, ok := idx.accounts[id]
	return a, ok
}

// AllAccounts returns every account, ascending by ID.
func (idx *Index) AllAccounts() []Account {
	return idx.byIDs(idx.ids)
}

// AccountsByIDs returns the accounts for the given IDs that exist in the
// inventory (missing IDs are silently dropped), ascending by ID.
func (idx *Index) AccountsByIDs(ids []string) []Account {
	var present []string
	for _, id := range ids {
		if _, ok := idx.accounts[id]; ok {
			present = appendUnique(present, id)
		}
	}
	sort.Strings(present)
	return idx.byIDs(present)
}

// AccountsByNames returns the accounts whose alias matches one of the given
// names (case-insensitive), ascending by ID.
func (idx *Index) AccountsByNames(names []string) []Account {
	var ids []string
	for _, name := range names {
		if id, ok := idx.aliases[normalize(name)]; ok {
			ids = appendUnique(ids, id)
		}
	}
	sort.Strings(ids)
	return idx.byIDs(ids)
}

// AccountsByTag returns the accounts carrying the given tag name/value pair,
// case-insensitively, ascending by ID.
func (idx *Index) AccountsByTag(name, value string) []Account {
	vals, ok := idx.tags[normalize(name)]
	if !ok {
		return nil
	}
	return idx.byIDs(vals[normalize(value)])
}

// AccountsByOU returns the accounts whose OU parent chain contains the given
// OU (matched by ID or name, case-insensitively), ascending by ID.
func (idx *Index) AccountsByOU(selector string) []Account {
	return idx.byIDs(idx.ous[normalize(selector)])
}

// AccountsByType returns the accounts of the given classification, ascending
// by ID.
func (idx *Index) AccountsByType(accountType string) []Account {
	t := normalize(accountType)
	var out []Account
	for _, id := range idx.ids {
		if normalize(idx.accounts[id].Type) == t {
			out = append(out, idx.accounts[id])
		}
	}
	return out
}

// AccountsByRegion returns the accounts enabled in the given region,
// ascending by ID.
func (idx *Index) AccountsByRegion(region string) []Account {
	return idx.byIDs(idx.regions[region])
}

// OrgRoot returns the organization root account, if the inventory marks one.
func (idx *Index) OrgRoot() (Account, bool) {
	if idx.orgRootID == "" {
		return Account{}, false
	}
	return idx.accounts[idx.orgRootID], true
}

func (idx *Index) byIDs(ids []string) []Account {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.accounts[id])
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
