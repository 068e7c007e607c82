package user

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "user-crud-service/internal/domain/user"
	apperrors "user-crud-service/pkg/errors"
	"user-crud-service/pkg/logger"
)

// ErrRequiredFields is the message returned when a create request lacks name or email.
const ErrRequiredFields = "Name and email are required fields"

// Repository defines the interface for user data access operations.
// Implementations report failures with the typed errors from pkg/errors so the
// transport layer can dispatch on a closed set of kinds.
type Repository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error) // Insert a new user, assigning its ID
	GetByID(ctx context.Context, id string) (*domain.User, error)     // Retrieve user by ID
	List(ctx context.Context) ([]domain.User, error)                  // List every user, oldest first
	Update(ctx context.Context, u *domain.User) (*domain.User, error) // Replace name and email of an existing user
	Delete(ctx context.Context, id string) (*domain.User, error)      // Delete user by ID, returning the removed record
}

// Usecase implements the business logic for user management operations.
// It provides a clean separation between the transport layer and data layer.
type Usecase struct {
	repo     Repository          // Repository for data access
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request validation
}

// New creates a new instance of Usecase with the provided repository and logger.
func New(r Repository, log *zap.Logger) *Usecase {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.ToLower(fld.Name)
	})
	return &Usecase{repo: r, log: log, validate: v}
}

// formatValidationError converts validator.ValidationErrors into a human-readable error.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			default:
				messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
			}
		}
		return apperrors.NewValidationError("", "validation failed: "+strings.Join(messages, ", "))
	}
	return err
}

// CreateUser validates the request and inserts the user. Email uniqueness is
// enforced by the store, which reports a conflict on a duplicate.
func (uc *Usecase) CreateUser(ctx context.Context, in CreateUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("creating user", zap.String("name", in.Name), zap.String("email", in.Email))

	if err := uc.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, apperrors.NewValidationError("", ErrRequiredFields)
	}

	u, err := uc.repo.Create(ctx, &domain.User{
		Name:  in.Name,
		Email: in.Email,
	})
	if err != nil {
		log.Warn("failed to create user", zap.String("kind", apperrors.KindOf(err).String()), zap.Error(err))
		return nil, err
	}

	log.Info("user created", zap.String("id", u.ID))
	return toResponse(u), nil
}

// ListUsers returns every stored user.
func (uc *Usecase) ListUsers(ctx context.Context) (*ListUsersResponse, error) {
	log := logger.WithContext(ctx, uc.log)

	users, err := uc.repo.List(ctx)
	if err != nil {
		log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = *toResponse(&users[i])
	}

	log.Debug("listed users", zap.Int("count", len(out)))
	return &ListUsersResponse{Users: out}, nil
}

// GetUser retrieves a user by ID.
func (uc *Usecase) GetUser(ctx context.Context, in GetUserRequest) (*UserResponse, error) {
	u, err := uc.repo.GetByID(ctx, in.ID)
	if err != nil {
		logger.WithContext(ctx, uc.log).Warn("failed to get user",
			zap.String("id", in.ID),
			zap.String("kind", apperrors.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}
	return toResponse(u), nil
}

// UpdateUser loads the user, merges the provided fields, validates the merged
// record and writes it back. Errors surface in this order: malformed id, not
// found, validation, then the store's uniqueness conflict.
func (uc *Usecase) UpdateUser(ctx context.Context, in UpdateUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("id", in.ID))
	log.Info("updating user", zap.Bool("name_set", in.Name != nil), zap.Bool("email_set", in.Email != nil))

	current, err := uc.repo.GetByID(ctx, in.ID)
	if err != nil {
		log.Warn("failed to load user for update", zap.String("kind", apperrors.KindOf(err).String()), zap.Error(err))
		return nil, err
	}

	if !in.HasChanges() {
		return toResponse(current), nil
	}

	merged := *current
	if in.Name != nil {
		merged.Name = *in.Name
	}
	if in.Email != nil {
		merged.Email = *in.Email
	}

	if err := uc.validate.Struct(userRecord{Name: merged.Name, Email: merged.Email}); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	updated, err := uc.repo.Update(ctx, &merged)
	if err != nil {
		log.Warn("failed to update user", zap.String("kind", apperrors.KindOf(err).String()), zap.Error(err))
		return nil, err
	}

	log.Info("user updated")
	return toResponse(updated), nil
}

// DeleteUser removes a user and returns the deleted record.
func (uc *Usecase) DeleteUser(ctx context.Context, in DeleteUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("id", in.ID))
	log.Info("deleting user")

	u, err := uc.repo.Delete(ctx, in.ID)
	if err != nil {
		log.Warn("failed to delete user", zap.String("kind", apperrors.KindOf(err).String()), zap.Error(err))
		return nil, err
	}

	log.Info("user deleted")
	return toResponse(u), nil
}
