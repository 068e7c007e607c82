package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"user-crud-service/internal/adapter/db/dynamo"
	"user-crud-service/internal/config"
)

const tableWait = 2 * time.Minute

// NewDynamoDB builds a DynamoDB client from the default AWS credential chain.
// DYNAMODB_ENDPOINT points it at a local emulator.
func NewDynamoDB(ctx context.Context, cfg *config.Config, l *zap.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})

	if cfg.DynamoDB.CreateTable {
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoDB.Table, tableWait); err != nil {
			return nil, err
		}
	}

	l.Info("DynamoDB client configured",
		zap.String("table", cfg.DynamoDB.Table),
		zap.String("region", cfg.DynamoDB.Region),
		zap.String("endpoint", cfg.DynamoDB.Endpoint),
	)
	return client, nil
}
