package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const tableName = "bookied-clusters"

// DynamoDBRegistrationManager stores bookie availability markers as
// items keyed (cluster_name, marker path). DynamoDB has no leases, so
// a daemon using this backend should also run periodic
// re-registration (-re-register-interval).
type DynamoDBRegistrationManager struct {
	client      *dynamodb.Client
	clusterName string
	instanceID  uuid.UUID
}

func NewDynamoDBRegistrationManager(client *dynamodb.Client, clusterName string) *DynamoDBRegistrationManager {
	return &DynamoDBRegistrationManager{
		client:      client,
		clusterName: clusterName,
		instanceID:  uuid.New(),
	}
}

// TODO: Table should probably be created out-of-band, not on startup?
func (d *DynamoDBRegistrationManager) InitTable(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("cluster_name"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeRange,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("cluster_name"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if errors.As(err, &resourceInUse) {
			log.Printf("Table %s already exists, skipping creation", tableName)
			return nil
		}
		return fmt.Errorf("failed to create DynamoDB table: %w", err)
	}

	return nil
}

func writableRangeKey(bookieID string) string {
	return "bookies/available/" + bookieID
}

func readOnlyRangeKey(bookieID string) string {
	return "bookies/available/readonly/" + bookieID
}

func (d *DynamoDBRegistrationManager) Register(ctx context.Context, bookieID string, readOnly bool) error {
	rangeKey := writableRangeKey(bookieID)
	if readOnly {
		rangeKey = readOnlyRangeKey(bookieID)
	}

	if err := d.putMarker(ctx, rangeKey, bookieID, readOnly); err != nil {
		return err
	}

	// DynamoDB has no multi-item transaction here; remove the
	// opposite marker after the put so the new mode always wins.
	if readOnly {
		if err := d.deleteMarker(ctx, writableRangeKey(bookieID)); err != nil {
			return fmt.Errorf("failed to remove writable marker after read-only registration: %w", err)
		}
	}

	return nil
}

func (d *DynamoDBRegistrationManager) Unregister(ctx context.Context, bookieID string, readOnly bool) error {
	rangeKey := writableRangeKey(bookieID)
	if readOnly {
		rangeKey = readOnlyRangeKey(bookieID)
	}
	return d.deleteMarker(ctx, rangeKey)
}

func (d *DynamoDBRegistrationManager) putMarker(ctx context.Context, rangeKey, bookieID string, readOnly bool) error {
	value, err := attributevalue.MarshalMap(newRegistrationRecord(bookieID, d.instanceID, readOnly))
	if err != nil {
		return fmt.Errorf("failed to marshal registration record: %w", err)
	}
	value["cluster_name"] = &types.AttributeValueMemberS{Value: d.clusterName}
	value["key"] = &types.AttributeValueMemberS{Value: rangeKey}

	putItemInput := dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      value,
	}

	if _, err := d.client.PutItem(ctx, &putItemInput); err != nil {
		return fmt.Errorf("failed to write registration marker to DynamoDB: %w", err)
	}

	return nil
}

func (d *DynamoDBRegistrationManager) deleteMarker(ctx context.Context, rangeKey string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"cluster_name": &types.AttributeValueMemberS{Value: d.clusterName},
			"key":          &types.AttributeValueMemberS{Value: rangeKey},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete registration marker from DynamoDB: %w", err)
	}

	return nil
}
