package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// snapshotDocument is the on-disk shape of a generated account inventory:
// a map of account ID to record plus a generation timestamp. The inventory
// worker writes the same shape.
type snapshotDocument struct {
	Accounts  map[string]Account `json:"accounts"`
	Generated time.Time          `json:"generated"`
}

// FileSource loads the account inventory from a JSON document on disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) FileSource {
	return FileSource{Path: path}
}

func (s FileSource) Key() string { return "file:" + s.Path }

func (s FileSource) Fetch(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read inventory file: %w", err)
	}

	var doc snapshotDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode inventory file: %w", err)
	}
	if doc.Accounts == nil {
		return nil, fmt.Errorf("inventory file has no accounts document")
	}

	accounts := make([]Account, 0, len(doc.Accounts))
	for id, a := range doc.Accounts {
		// The map key is authoritative for the account ID.
		a.ID = id
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// WriteSnapshot serializes accounts into the inventory document shape. Used
// by the inventory worker and by tests.
func WriteSnapshot(path string, accounts []Account, generated time.Time) error {
	doc := snapshotDocument{
		Accounts:  make(map[string]Account, len(accounts)),
		Generated: generated.UTC().Truncate(time.Second),
	}
	for _, a := range accounts {
		doc.Accounts[a.ID] = a
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode inventory document: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write inventory file: %w", err)
	}
	return nil
}
