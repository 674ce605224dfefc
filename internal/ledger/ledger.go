// Package ledger keeps per-resource available quantities consistent with the
// reservations held by bookings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// MaxQuantity bounds any single line, per-resource sum or delta. It matches
// the 32-bit quantity columns in storage.
const MaxQuantity = math.MaxInt32

// Resource is the ledger's view of an inventory entry.
type Resource struct {
	ID          string
	Name        string
	Total       int
	Available   int
	IsAvailable bool
}

// Line is a claim of Quantity units against a resource.
type Line struct {
	ResourceID string
	Quantity   int
}

// Delta is a signed change to a resource claim. Positive reserves, negative releases.
type Delta struct {
	ResourceID string
	Amount     int
}

// Store is the storage collaborator the ledger reads from and writes through.
// GetResource returns an error matching ErrResourceNotFound for unknown ids.
type Store interface {
	GetResource(ctx context.Context, id string) (Resource, error)
	CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error)
}

// Ledger validates and applies batches of resource deltas.
type Ledger struct {
	store Store
}

// New constructs a Ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// NetDeltas computes per-resource net deltas moving from prior claims to next
// claims. Zero deltas are dropped and the result is ordered by resource id.
// A negative line or a per-resource sum above MaxQuantity is rejected with a
// *QuantityRangeError.
func NetDeltas(prior, next []Line) ([]Delta, error) {
	wanted, err := sumLines(next)
	if err != nil {
		return nil, err
	}
	held, err := sumLines(prior)
	if err != nil {
		return nil, err
	}
	for id, q := range held {
		wanted[id] -= q
	}
	return collect(wanted), nil
}

func sumLines(lines []Line) (map[string]int, error) {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 0 {
			return nil, &QuantityRangeError{ResourceID: line.ResourceID, Quantity: int64(line.Quantity)}
		}
		sum, ok := addQuantity(totals[line.ResourceID], line.Quantity)
		if !ok {
			return nil, &QuantityRangeError{ResourceID: line.ResourceID, Quantity: reported(totals[line.ResourceID], line.Quantity)}
		}
		totals[line.ResourceID] = sum
	}
	return totals, nil
}

func normalize(deltas []Delta) ([]Delta, error) {
	totals := make(map[string]int, len(deltas))
	for _, d := range deltas {
		sum, ok := addQuantity(totals[d.ResourceID], d.Amount)
		if !ok {
			return nil, &QuantityRangeError{ResourceID: d.ResourceID, Quantity: reported(totals[d.ResourceID], d.Amount)}
		}
		totals[d.ResourceID] = sum
	}
	return collect(totals), nil
}

// addQuantity adds in 64 bits and reports whether the result stays within
// [-MaxQuantity, MaxQuantity].
func addQuantity(a, b int) (int, bool) {
	sum := int64(a) + int64(b)
	if sum > MaxQuantity || sum < -MaxQuantity {
		return 0, false
	}
	return int(sum), true
}

// reported is the offending value for an error message: the addend alone when
// it is out of range by itself, otherwise the exact sum.
func reported(total, amount int) int64 {
	if amount > MaxQuantity || amount < -MaxQuantity {
		return int64(amount)
	}
	return int64(total) + int64(amount)
}

func collect(totals map[string]int) []Delta {
	out := make([]Delta, 0, len(totals))
	for id, amount := range totals {
		if amount == 0 {
			continue
		}
		out = append(out, Delta{ResourceID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// Reserve debits every line as one batch.
func (l *Ledger) Reserve(ctx context.Context, lines []Line) error {
	deltas, err := NetDeltas(nil, lines)
	if err != nil {
		return err
	}
	return l.Apply(ctx, deltas)
}

// Release credits every line back as one batch.
func (l *Ledger) Release(ctx context.Context, lines []Line) error {
	deltas, err := NetDeltas(lines, nil)
	if err != nil {
		return err
	}
	return l.Apply(ctx, deltas)
}

type plannedChange struct {
	resourceID string
	expected   int
	next       int
}

// Apply validates every delta against current availability and applies them
// only if all pass. Each change is a compare-and-set against the value read
// during validation; if one loses, the changes already applied are reverted.
func (l *Ledger) Apply(ctx context.Context, deltas []Delta) error {
	deltas, err := normalize(deltas)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	plan := make([]plannedChange, 0, len(deltas))
	for _, d := range deltas {
		res, err := l.store.GetResource(ctx, d.ResourceID)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				return &ResourceNotFoundError{ResourceID: d.ResourceID}
			}
			return fmt.Errorf("ledger: load resource %s: %w", d.ResourceID, err)
		}
		if err := validate(res, d.Amount); err != nil {
			return err
		}
		plan = append(plan, plannedChange{
			resourceID: d.ResourceID,
			expected:   res.Available,
			next:       res.Available - d.Amount,
		})
	}

	for i, change := range plan {
		swapped, err := l.store.CompareAndSwapAvailable(ctx, change.resourceID, change.expected, change.next)
		if err == nil && swapped {
			continue
		}

		cause := err
		if cause == nil {
			cause = fmt.Errorf("%w: resource %s changed from %d", ErrConcurrentUpdate, change.resourceID, change.expected)
		} else {
			cause = fmt.Errorf("ledger: update resource %s: %w", change.resourceID, cause)
		}
		if compErr := l.revert(ctx, plan[:i]); compErr != nil {
			return errors.Join(cause, compErr)
		}
		return cause
	}

	return nil
}

func validate(res Resource, amount int) error {
	if res.Available < 0 || res.Available > res.Total {
		return &InvariantError{ResourceID: res.ID, Available: res.Available, Total: res.Total, Delta: amount}
	}
	if amount > 0 {
		if !res.IsAvailable {
			return &ResourceUnavailableError{ResourceID: res.ID, Name: res.Name}
		}
		if res.Available < amount {
			return &InsufficientQuantityError{
				ResourceID: res.ID,
				Name:       res.Name,
				Requested:  amount,
				Available:  res.Available,
			}
		}
		return nil
	}
	if res.Available-amount > res.Total {
		return &InvariantError{ResourceID: res.ID, Available: res.Available, Total: res.Total, Delta: amount}
	}
	return nil
}

func (l *Ledger) revert(ctx context.Context, applied []plannedChange) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		change := applied[i]
		swapped, err := l.store.CompareAndSwapAvailable(ctx, change.resourceID, change.next, change.expected)
		if err != nil {
			errs = append(errs, fmt.Errorf("ledger: revert resource %s: %w", change.resourceID, err))
			continue
		}
		if !swapped {
			errs = append(errs, &InvariantError{ResourceID: change.resourceID, Available: change.next, Delta: change.next - change.expected})
		}
	}
	return errors.Join(errs...)
}
