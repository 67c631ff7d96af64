package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// PaymentRefTTL bounds how long a pending payment correlation survives.
// Records past the TTL are auto-deleted by DynamoDB; an approval callback
// arriving later is treated as unknown.
const PaymentRefTTL = 2 * time.Hour

// paymentRefKeyPrefix namespaces payment records inside the events table so
// they can never collide with event IDs (which are UUIDs).
const paymentRefKeyPrefix = "payment-ref#"

// PaymentRef correlates a payment-gateway approval flow with the event draft
// that should be created once payment completes. Persisted externally (not
// in process memory) so state survives restarts and scales across instances.
type PaymentRef struct {
	PaymentID  string `json:"paymentId" dynamodbav:"-"`
	OwnerEmail string `json:"email" dynamodbav:"email"`
	EventName  string `json:"eventName" dynamodbav:"event_name"`
	EventDate  string `json:"eventDate" dynamodbav:"event_date"`
	Phone      string `json:"phone" dynamodbav:"phone"`
	CreatedAt  string `json:"createdAt" dynamodbav:"created_at"`
}

// PutPaymentRef stores a pending payment correlation with a TTL.
func (d *DynamoDirectory) PutPaymentRef(ctx context.Context, ref *PaymentRef) error {
	if ref.CreatedAt == "" {
		ref.CreatedAt = NowISO()
	}

	item, err := attributevalue.MarshalMap(ref)
	if err != nil {
		return fmt.Errorf("marshal payment ref %s: %w", ref.PaymentID, err)
	}
	item["event_id"] = &types.AttributeValueMemberS{Value: paymentRefKeyPrefix + ref.PaymentID}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(PaymentRefTTL).Unix(), 10),
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put payment ref %s: %w", ref.PaymentID, err)
	}

	log.Debug().Str("paymentId", ref.PaymentID).Str("owner", ref.OwnerEmail).Msg("Payment ref persisted")
	return nil
}

// GetPaymentRef retrieves a pending payment correlation.
// Returns nil, nil when the record does not exist or has expired.
func (d *DynamoDirectory) GetPaymentRef(ctx context.Context, paymentID string) (*PaymentRef, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key:       eventKey(paymentRefKeyPrefix + paymentID),
	})
	if err != nil {
		return nil, fmt.Errorf("get payment ref %s: %w", paymentID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	// TTL deletion is lazy; treat an expired record as absent.
	if expAttr, ok := result.Item["expiresAt"].(*types.AttributeValueMemberN); ok {
		if exp, err := strconv.ParseInt(expAttr.Value, 10, 64); err == nil && exp < time.Now().Unix() {
			return nil, nil
		}
	}

	var ref PaymentRef
	if err := attributevalue.UnmarshalMap(result.Item, &ref); err != nil {
		return nil, fmt.Errorf("unmarshal payment ref %s: %w", paymentID, err)
	}
	ref.PaymentID = paymentID
	return &ref, nil
}

// DeletePaymentRef removes a consumed payment correlation. Missing records
// are not an error, TTL may have beaten us to it.
func (d *DynamoDirectory) DeletePaymentRef(ctx context.Context, paymentID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &d.tableName,
		Key:       eventKey(paymentRefKeyPrefix + paymentID),
	})
	if err != nil {
		return fmt.Errorf("delete payment ref %s: %w", paymentID, err)
	}
	return nil
}
