// Package payload materializes one invocation payload per target, embedding
// worker identity, target identity and a frozen configuration snapshot.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"starfleet/internal/resolve"
)

// ErrConfigNotSerializable indicates the worker configuration could not be
// captured as an immutable snapshot. It is fatal for the whole run: every
// target would fail identically.
var ErrConfigNotSerializable = errors.New("worker configuration is not serializable")

// Invocation is the immutable unit of work handed to a worker execution:
// one worker, one target, one attempt. A retry is a fresh Invocation with an
// incremented attempt number, never a mutation.
type Invocation struct {
	// ID uniquely identifies this attempt.
	ID string `json:"id"`

	// RunID ties the invocation to the run that produced it.
	RunID string `json:"run_id"`

	// Worker is the registered worker plugin name.
	Worker string `json:"worker"`

	// AccountID and Region identify the target.
	AccountID string `json:"account_id"`
	Region    string `json:"region"`

	// Attempt is 1-based.
	Attempt int `json:"attempt"`

	// Config is the worker configuration snapshot. Each Invocation carries
	// its own deep copy; workers may not observe each other's mutations.
	Config map[string]any `json:"config,omitempty"`
}

// Target returns the invocation's target identity as "account/region".
func (inv Invocation) Target() string {
	return fmt.Sprintf("%s/%s", inv.AccountID, inv.Region)
}

// Builder builds invocations for one worker run. The configuration is
// snapshotted once at construction; construction fails with
// ErrConfigNotSerializable before any dispatch if the configuration cannot
// be frozen.
type Builder struct {
	workerName string
	runID      string
	snapshot   []byte // canonical JSON form of the config
}

func NewBuilder(workerName, runID string, config map[string]any) (*Builder, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigNotSerializable, err)
	}
	return &Builder{
		workerName: workerName,
		runID:      runID,
		snapshot:   raw,
	}, nil
}

// Build produces a fresh invocation for the given target and attempt number.
// It is a pure function of the builder's frozen state and its arguments,
// except for the generated invocation ID.
func (b *Builder) Build(target resolve.Target, attempt int) Invocation {
	var config map[string]any
	// The snapshot marshaled at construction; unmarshal of its own output
	// cannot fail.
	_ = json.Unmarshal(b.snapshot, &config)

	return Invocation{
		ID:        uuid.NewString(),
		RunID:     b.runID,
		Worker:    b.workerName,
		AccountID: target.AccountID,
		Region:    target.Region,
		Attempt:   attempt,
		Config:    config,
	}
}
