package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const tableActiveTimeout = 30 * time.Second

// stateChangesTableInput describes the journal table: one partition per
// agent, sorted by the time the change was recorded.
func stateChangesTableInput(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String("AgentID"), KeyType: dbtypes.KeyTypeHash},
			{AttributeName: aws.String("RecordedAt"), KeyType: dbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String("AgentID"), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("RecordedAt"), AttributeType: dbtypes.ScalarAttributeTypeN},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	}
}

// CreateTablesIfNotExist creates the journal table for local development
// and waits until it accepts writes.
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	name := config.StateChangesTable

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		logger.Debug().Str("table", name).Msg("journal table present")
		return nil
	}
	var notFound *dbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", name, err)
	}

	if _, err := client.CreateTable(ctx, stateChangesTableInput(name)); err != nil {
		var inUse *dbtypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, tableActiveTimeout); err != nil {
		return fmt.Errorf("table %s did not become active: %w", name, err)
	}
	logger.Info().Str("table", name).Msg("journal table created")
	return nil
}
