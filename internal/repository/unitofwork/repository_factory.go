package unitofwork

import "context"

// RepositoryFactory opens a new transactional unit of work per request.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
