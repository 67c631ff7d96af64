package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// Client is the subset of the DynamoDB API the directory uses.
// *dynamodb.Client satisfies it; tests substitute an in-memory fake.
type Client interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDirectory implements Directory against a DynamoDB table keyed by
// event_id.
type DynamoDirectory struct {
	client    Client
	tableName string
}

var _ Directory = (*DynamoDirectory)(nil)

// NewDynamoDirectory creates a directory over the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoDirectory(client Client, tableName string) *DynamoDirectory {
	return &DynamoDirectory{client: client, tableName: tableName}
}

func eventKey(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"event_id": &types.AttributeValueMemberS{Value: eventID},
	}
}

// isConditionFailure reports whether err is a failed conditional write.
func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (d *DynamoDirectory) CreateEvent(ctx context.Context, event *Event) error {
	if event.CreatedAt == "" {
		event.CreatedAt = NowISO()
	}
	if event.Status == "" {
		event.Status = StatusPendingUpload
	}
	if event.Guests == nil {
		event.Guests = []GuestSubmission{}
	}

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("create event %s: %w", event.ID, ErrEventExists)
		}
		return fmt.Errorf("create event %s: %w", event.ID, err)
	}

	log.Info().
		Str("eventId", event.ID).
		Str("owner", event.OwnerEmail).
		Str("folder", event.Folder).
		Msg("Event created")
	return nil
}

func (d *DynamoDirectory) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key:       eventKey(eventID),
	})
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, ErrEventNotFound)
	}

	var event Event
	if err := attributevalue.UnmarshalMap(result.Item, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", eventID, err)
	}
	return &event, nil
}

func (d *DynamoDirectory) UpdateStatus(ctx context.Context, eventID string, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("update status %s: %s -> %s: %w", eventID, from, to, ErrStatusConflict)
	}

	// Targeted attribute update, never a full-record overwrite: a roster
	// append racing with this transition must survive.
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &d.tableName,
		Key:                 eventKey(eventID),
		UpdateExpression:    aws.String("SET #s = :to"),
		ConditionExpression: aws.String("attribute_exists(event_id) AND #s = :from"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":from": &types.AttributeValueMemberS{Value: string(from)},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("update status %s: expected %s: %w", eventID, from, ErrStatusConflict)
		}
		return fmt.Errorf("update status %s: %w", eventID, err)
	}

	log.Info().Str("eventId", eventID).Str("from", string(from)).Str("to", string(to)).Msg("Event status updated")
	return nil
}

func (d *DynamoDirectory) ListEventsByOwner(ctx context.Context, email string) ([]*Event, error) {
	start := time.Now()
	input := &dynamodb.ScanInput{
		TableName:        &d.tableName,
		FilterExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
	}

	var events []*Event
	for {
		result, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list events for %s: %w", email, err)
		}
		for _, item := range result.Items {
			var event Event
			if err := attributevalue.UnmarshalMap(item, &event); err != nil {
				log.Warn().Err(err).Msg("Skipping unreadable event record")
				continue
			}
			events = append(events, &event)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	log.Debug().Str("owner", email).Int("count", len(events)).Dur("duration", time.Since(start)).Msg("Events listed")
	return events, nil
}

func (d *DynamoDirectory) AppendGuest(ctx context.Context, eventID string, guest GuestSubmission) error {
	guestAV, err := attributevalue.Marshal([]GuestSubmission{guest})
	if err != nil {
		return fmt.Errorf("marshal guest for %s: %w", eventID, err)
	}

	// Native atomic list_append: no read-modify-write, so concurrent
	// submissions to the same event cannot lose updates.
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &d.tableName,
		Key:                 eventKey(eventID),
		UpdateExpression:    aws.String("SET guest_list = list_append(if_not_exists(guest_list, :empty), :g)"),
		ConditionExpression: aws.String("attribute_exists(event_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":g":     guestAV,
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("append guest to %s: %w", eventID, ErrEventNotFound)
		}
		return fmt.Errorf("append guest to %s: %w", eventID, err)
	}

	log.Info().
		Str("eventId", eventID).
		Str("guestId", guest.ID).
		Str("phone", guest.Phone).
		Msg("Guest appended to roster")
	return nil
}
