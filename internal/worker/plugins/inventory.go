package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"starfleet/internal/index"
	"starfleet/internal/payload"
	"starfleet/internal/worker"
)

// Inventory records each target as a single-account index snapshot document
// under the configured output directory. The documents are loadable with
// --index-file, which makes this worker a cheap way to materialize a file
// index from a live fleet.
//
// Config:
//   - output_dir: directory for the snapshot documents (required)
//   - commit: write the documents; without it the worker reports what it
//     would write and changes nothing
type Inventory struct {
	// now is a test seam.
	now func() time.Time
}

func (w *Inventory) Name() string {
	return "inventory"
}

func (w *Inventory) Description() string {
	return "Writes one account index snapshot document per target"
}

func (w *Inventory) Execute(_ context.Context, inv payload.Invocation) worker.ExecutionResult {
	dir, _ := inv.Config["output_dir"].(string)
	if dir == "" {
		return worker.Fatal("inventory worker requires config key output_dir")
	}

	path := filepath.Join(dir, inv.AccountID+".json")
	commit, _ := inv.Config["commit"].(bool)
	if !commit {
		return worker.Success(fmt.Sprintf("would write %s (run with --commit)", path))
	}

	now := time.Now
	if w.now != nil {
		now = w.now
	}
	account := index.Account{
		ID:      inv.AccountID,
		Regions: []string{inv.Region},
	}
	if err := index.WriteSnapshot(path, []index.Account{account}, now()); err != nil {
		// Filesystem trouble tends to be transient (volume pressure, NFS
		// hiccups); let the retry budget decide.
		return worker.Retryable(err.Error())
	}
	return worker.Success("wrote " + path)
}

func init() {
	worker.Register(&Inventory{})
}
