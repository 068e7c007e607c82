package instrumented

import (
	"context"

	domain "user-crud-service/internal/domain/user"
	"user-crud-service/internal/usecase/user"
	"user-crud-service/pkg/metrics"
)

// UserRepository records latency and error class of every store call.
type UserRepository struct {
	next user.Repository
	prom *metrics.Prom
}

// NewUserRepository wraps next with store metrics.
func NewUserRepository(next user.Repository, prom *metrics.Prom) *UserRepository {
	return &UserRepository{next: next, prom: prom}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (out *domain.User, err error) {
	err = r.prom.ObserveStore("create", func() error {
		out, err = r.next.Create(ctx, u)
		return err
	})
	return out, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (out *domain.User, err error) {
	err = r.prom.ObserveStore("get", func() error {
		out, err = r.next.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (r *UserRepository) List(ctx context.Context) (out []domain.User, err error) {
	err = r.prom.ObserveStore("list", func() error {
		out, err = r.next.List(ctx)
		return err
	})
	return out, err
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) (out *domain.User, err error) {
	err = r.prom.ObserveStore("update", func() error {
		out, err = r.next.Update(ctx, u)
		return err
	})
	return out, err
}

func (r *UserRepository) Delete(ctx context.Context, id string) (out *domain.User, err error) {
	err = r.prom.ObserveStore("delete", func() error {
		out, err = r.next.Delete(ctx, id)
		return err
	})
	return out, err
}
