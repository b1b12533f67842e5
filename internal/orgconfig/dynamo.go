package orgconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the loader needs. Satisfied
// by *dynamodb.Client; replaced by a fake in tests.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Dynamo loads organisation configurations from a DynamoDB table keyed by
// organisation and configuration id. The configuration document sits in the
// item's configValue attribute, stored either as a JSON string or as a native
// map; legacy rows wrap the document in a single-element list.
type Dynamo struct {
	client DynamoAPI
	table  string
}

var _ Loader = (*Dynamo)(nil)

// NewDynamo creates a loader against the given table.
func NewDynamo(client DynamoAPI, table string) (*Dynamo, error) {
	if table == "" {
		return nil, fmt.Errorf("orgconfig: table name must not be empty")
	}
	return &Dynamo{client: client, table: table}, nil
}

// Load implements [Loader].
func (d *Dynamo) Load(ctx context.Context, orgID, configID string) (*Config, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]ddbtypes.AttributeValue{
			"orgId":    &ddbtypes.AttributeValueMemberS{Value: orgID},
			"configId": &ddbtypes.AttributeValueMemberS{Value: configID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orgconfig: get item %s/%s: %w", orgID, configID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, orgID, configID)
	}

	raw, ok := out.Item["configValue"]
	if !ok {
		return nil, fmt.Errorf("orgconfig: item %s/%s has no configValue", orgID, configID)
	}

	cfg, err := decodeConfigValue(raw)
	if err != nil {
		return nil, fmt.Errorf("orgconfig: decode %s/%s: %w", orgID, configID, err)
	}
	if cfg.ConfigID == "" {
		cfg.ConfigID = configID
	}
	return cfg, nil
}

// decodeConfigValue handles the three shapes configValue appears in.
func decodeConfigValue(av ddbtypes.AttributeValue) (*Config, error) {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return decodeJSONDocument([]byte(v.Value))

	case *ddbtypes.AttributeValueMemberM:
		cfg := &Config{}
		if err := attributevalue.UnmarshalMap(v.Value, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal map: %w", err)
		}
		return cfg, nil

	case *ddbtypes.AttributeValueMemberL:
		if len(v.Value) == 0 {
			return nil, fmt.Errorf("configValue list is empty")
		}
		return decodeConfigValue(v.Value[0])

	default:
		return nil, fmt.Errorf("unsupported configValue type %T", av)
	}
}

// decodeJSONDocument parses a JSON configuration, accepting both a bare
// object and a single-element array around it.
func decodeJSONDocument(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err == nil {
		return cfg, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("json array is empty")
	}
	if err := json.Unmarshal(list[0], cfg); err != nil {
		return nil, fmt.Errorf("unmarshal json array element: %w", err)
	}
	return cfg, nil
}
