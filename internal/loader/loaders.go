package loader

import (
	"context"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/repository"
)

// Loaders bundles the per-request loaders for every entity kind nested
// fields resolve through. Build one bundle per external request; the caches
// inside must never be shared across requests.
type Loaders struct {
	Exceptions    *Loader[string, *domain.InterfaceException]
	RetryHistory  *Loader[string, []domain.RetryAttempt]
	StatusHistory *Loader[string, []domain.StatusChange]
}

// ForRequest constructs a fresh request-scoped bundle. Each loader issues at
// most one bulk store call per dispatch for its entity kind.
func ForRequest(
	exceptions repository.ExceptionRepository,
	attempts repository.AttemptRepository,
	changes repository.StatusChangeRepository,
	opts ...Option,
) *Loaders {
	return &Loaders{
		Exceptions: New(func(ctx context.Context, keys []string) (map[string]*domain.InterfaceException, error) {
			found, err := exceptions.FindByTransactionIDs(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[string]*domain.InterfaceException, len(found))
			for i := range found {
				e := found[i]
				out[e.TransactionID] = &e
			}
			return out, nil
		}, opts...),

		RetryHistory: New(func(ctx context.Context, keys []string) (map[string][]domain.RetryAttempt, error) {
			found, err := attempts.ListByTransactionIDs(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[string][]domain.RetryAttempt, len(keys))
			for _, a := range found {
				out[a.TransactionID] = append(out[a.TransactionID], a)
			}
			return out, nil
		}, opts...),

		StatusHistory: New(func(ctx context.Context, keys []string) (map[string][]domain.StatusChange, error) {
			found, err := changes.ListByTransactionIDs(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[string][]domain.StatusChange, len(keys))
			for _, c := range found {
				out[c.TransactionID] = append(out[c.TransactionID], c)
			}
			return out, nil
		}, opts...),
	}
}
