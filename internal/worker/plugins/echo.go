// Package plugins holds the built-in workers. Importing it (usually blank,
// from the binary entrypoint) registers every plugin with the worker
// registry.
package plugins

import (
	"context"
	"fmt"

	"starfleet/internal/payload"
	"starfleet/internal/worker"
)

// Echo is a no-op worker for smoke-testing targeting, retry and reporting
// without touching any account.
//
// Config:
//   - message: echoed back in the result detail
//   - retry_accounts: account IDs that fail retryably on every attempt
//   - flaky_accounts: account IDs that fail retryably on the first attempt
//     only, then succeed
//   - fatal_accounts: account IDs that fail fatally
type Echo struct{}

func (e *Echo) Name() string {
	return "echo"
}

func (e *Echo) Description() string {
	return "Echoes each target back; useful as a targeting and pipeline smoke test"
}

func (e *Echo) Execute(_ context.Context, inv payload.Invocation) worker.ExecutionResult {
	if containsAccount(inv.Config["fatal_accounts"], inv.AccountID) {
		return worker.Fatal(fmt.Sprintf("account %s configured to fail fatally", inv.AccountID))
	}
	if containsAccount(inv.Config["retry_accounts"], inv.AccountID) {
		return worker.Retryable(fmt.Sprintf("account %s configured to fail retryably", inv.AccountID))
	}
	if inv.Attempt == 1 && containsAccount(inv.Config["flaky_accounts"], inv.AccountID) {
		return worker.Retryable(fmt.Sprintf("account %s flaky on first attempt", inv.AccountID))
	}

	message, _ := inv.Config["message"].(string)
	if message == "" {
		message = "echo"
	}
	return worker.Success(fmt.Sprintf("%s: %s", message, inv.Target()))
}

// containsAccount reports whether the config value, a JSON-decoded list of
// account IDs, contains the given ID.
func containsAccount(v any, accountID string) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if s, ok := item.(string); ok && s == accountID {
			return true
		}
	}
	return false
}

func init() {
	worker.Register(&Echo{})
}
