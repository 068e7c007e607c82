package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"user-crud-service/internal/domain/user"
	apperrors "user-crud-service/pkg/errors"
)

const (
	entityUser      = "user"
	entityUserEmail = "user_email"

	conditionFailed = "ConditionalCheckFailed"

	condNotExists       = "attribute_not_exists(pk)"
	condExists          = "attribute_exists(pk)"
	condExistsVersioned = "attribute_exists(pk) AND #version = :expected_version"
	filterUsers         = "entity_type = :entity_type"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// userItem is the stored form of a user.
type userItem struct {
	PK         string `dynamodbav:"pk"`
	EntityType string `dynamodbav:"entity_type"`
	ID         string `dynamodbav:"id"`
	Name       string `dynamodbav:"name"`
	Email      string `dynamodbav:"email"`
	Version    int64  `dynamodbav:"version"`
	CreatedAt  string `dynamodbav:"created_at"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// emailItem reserves an email address for exactly one user.
type emailItem struct {
	PK         string `dynamodbav:"pk"`
	EntityType string `dynamodbav:"entity_type"`
	UserID     string `dynamodbav:"user_id"`
}

func userPK(id string) string     { return entityUser + "#" + id }
func emailPK(email string) string { return entityUserEmail + "#" + email }

func keyOf(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (it *userItem) toDomain() (*user.User, error) {
	created, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", it.ID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", it.ID, err)
	}
	return &user.User{
		ID:        it.ID,
		Name:      it.Name,
		Email:     it.Email,
		CreatedAt: created.UTC(),
		UpdatedAt: updated.UTC(),
	}, nil
}

// UserRepo stores users in a single DynamoDB table. Email uniqueness is kept by
// a sentinel item per address, written in the same transaction as the user.
type UserRepo struct {
	client API
	table  string
	log    *zap.Logger
}

// NewUserRepo creates a DynamoDB-backed user repository.
func NewUserRepo(client API, table string, log *zap.Logger) *UserRepo {
	return &UserRepo{client: client, table: table, log: log}
}

func (r *UserRepo) emailPut(email, userID string) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(emailItem{
		PK:         emailPK(email),
		EntityType: entityUserEmail,
		UserID:     userID,
	})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal email item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.table),
			Item:                item,
			ConditionExpression: aws.String(condNotExists),
		},
	}, nil
}

// Create inserts a user together with the reservation of its email.
func (r *UserRepo) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}

	ts := formatTime(now())
	it := userItem{
		ID:         user.NewID(),
		EntityType: entityUser,
		Name:       u.Name,
		Email:      u.Email,
		Version:    1,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	it.PK = userPK(it.ID)

	userAV, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("marshal user item: %w", err)
	}
	emailPut, err := r.emailPut(it.Email, it.ID)
	if err != nil {
		return nil, err
	}

	// index 0 is the email reservation, index 1 the user
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			emailPut,
			{Put: &types.Put{
				TableName:           aws.String(r.table),
				Item:                userAV,
				ConditionExpression: aws.String(condNotExists),
			}},
		},
	})
	if err != nil {
		if failedAt(err) == 0 {
			r.log.Warn("duplicate email on create", zap.String("email", u.Email))
			return nil, apperrors.NewConflictError("user", "email", err)
		}
		r.log.Error("failed to create user in dynamodb", zap.Error(err), zap.String("email", u.Email))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.log.Info("user created in dynamodb", zap.String("id", it.ID))
	return it.toDomain()
}

func (r *UserRepo) get(ctx context.Context, id string) (*userItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            keyOf(userPK(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.log.Error("failed to get user from dynamodb", zap.Error(err), zap.String("id", id))
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("user", id)
	}

	var it userItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, apperrors.NewInternalError("failed to decode user", err)
	}
	return &it, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, rawID string) (*user.User, error) {
	id, err := user.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	it, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return it.toDomain()
}

// List scans the table for user items and returns them oldest first.
func (r *UserRepo) List(ctx context.Context) ([]user.User, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String(filterUsers),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entity_type": &types.AttributeValueMemberS{Value: entityUser},
		},
		ConsistentRead: aws.Bool(true),
	})

	var items []userItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.log.Error("failed to scan users", zap.Error(err))
			return nil, apperrors.NewInternalError("failed to list users", err)
		}
		var batch []userItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, apperrors.NewInternalError("failed to decode users", err)
		}
		items = append(items, batch...)
	}

	users := make([]user.User, 0, len(items))
	for i := range items {
		u, err := items[i].toDomain()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to decode users", err)
		}
		users = append(users, *u)
	}
	slices.SortStableFunc(users, func(a, b user.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

// Update replaces name and email of an existing user. The user put is guarded by
// the version read beforehand; an email change moves the reservation in the same
// transaction.
func (r *UserRepo) Update(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}
	id, err := user.ParseID(u.ID)
	if err != nil {
		return nil, err
	}

	current, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Name = u.Name
	next.Email = u.Email
	next.Version = current.Version + 1
	next.UpdatedAt = formatTime(now())

	userAV, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal user item: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(r.table),
			Item:                     userAV,
			ConditionExpression:      aws.String(condExistsVersioned),
			ExpressionAttributeNames: map[string]string{"#version": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(current.Version, 10)},
			},
		},
	}}

	emailIndex := -1
	if next.Email != current.Email {
		emailPut, err := r.emailPut(next.Email, id)
		if err != nil {
			return nil, err
		}
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.table),
				Key:       keyOf(emailPK(current.Email)),
			},
		})
		emailIndex = len(items)
		items = append(items, emailPut)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		idx := failedAt(err)
		switch {
		case emailIndex >= 0 && idx == emailIndex:
			r.log.Warn("duplicate email on update", zap.String("id", id), zap.String("email", u.Email))
			return nil, apperrors.NewConflictError("user", "email", err)
		case idx == 0:
			// deleted or rewritten between the read and the write
			if _, getErr := r.get(ctx, id); apperrors.KindOf(getErr) == apperrors.KindNotFound {
				return nil, getErr
			}
			return nil, fmt.Errorf("failed to update user: user %s was modified concurrently", id)
		}
		r.log.Error("failed to update user in dynamodb", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	r.log.Info("user updated in dynamodb", zap.String("id", id))
	return next.toDomain()
}

// Delete removes a user and releases its email.
func (r *UserRepo) Delete(ctx context.Context, rawID string) (*user.User, error) {
	id, err := user.ParseID(rawID)
	if err != nil {
		return nil, err
	}

	current, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(r.table),
				Key:                 keyOf(userPK(id)),
				ConditionExpression: aws.String(condExists),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.table),
				Key:       keyOf(emailPK(current.Email)),
			}},
		},
	})
	if err != nil {
		if failedAt(err) == 0 {
			return nil, apperrors.NewNotFoundError("user", id)
		}
		r.log.Error("failed to delete user in dynamodb", zap.Error(err), zap.String("id", id))
		return nil, apperrors.NewInternalError("failed to delete user", err)
	}

	r.log.Info("user deleted in dynamodb", zap.String("id", id))
	return current.toDomain()
}

// Ping checks that the table is reachable.
func (r *UserRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	return err
}

// failedAt returns the index of the transaction item whose condition check
// cancelled the transaction, or -1.
func failedAt(err error) int {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return -1
	}
	for i, reason := range txErr.CancellationReasons {
		if reason.Code != nil && *reason.Code == conditionFailed {
			return i
		}
	}
	return -1
}
