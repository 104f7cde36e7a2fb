package store

import "context"

// Confirmer asks the user to approve a destructive operation
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

var (
	Approve = ConfirmFunc(func(context.Context, string) bool { return true })
	Decline = ConfirmFunc(func(context.Context, string) bool { return false })
)

const (
	promptNewValuation    = "Start a new valuation? Unsaved data will be lost."
	promptDeleteValuation = "Delete this saved valuation?"
	promptLoadValuation   = "Loading this valuation replaces the current data. Continue?"
)

func confirmed(ctx context.Context, c Confirmer, prompt string) bool {
	return c != nil && c.Confirm(ctx, prompt)
}
