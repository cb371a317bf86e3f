package storedynamo

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/userplane/userplane/pkg/store"
)

// keyAttributes are the item attributes promoted to store.Record fields.
var keyAttributes = []string{
	"PK", "SK",
	"GSI1PK", "GSI1SK",
	"GSI2PK", "GSI2SK",
	"GSI3PK", "GSI3SK",
	"entityType",
}

func marshalRecord(rec store.Record) (map[string]types.AttributeValue, error) {
	flat := make(map[string]interface{}, len(rec.Attributes)+len(keyAttributes))
	for k, v := range rec.Attributes {
		flat[k] = v
	}

	flat["PK"] = rec.PK
	flat["SK"] = rec.SK
	if rec.EntityType != "" {
		flat["entityType"] = rec.EntityType
	}
	setIfPresent(flat, "GSI1PK", rec.GSI1PK)
	setIfPresent(flat, "GSI1SK", rec.GSI1SK)
	setIfPresent(flat, "GSI2PK", rec.GSI2PK)
	setIfPresent(flat, "GSI2SK", rec.GSI2SK)
	setIfPresent(flat, "GSI3PK", rec.GSI3PK)
	setIfPresent(flat, "GSI3SK", rec.GSI3SK)

	item, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil, store.ErrRegistry.NewWithCause(store.CodeBadRecord, err).
			WithDetail("pk", rec.PK).
			WithDetail("sk", rec.SK)
	}
	return item, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (store.Record, error) {
	var flat map[string]interface{}
	if err := attributevalue.UnmarshalMap(item, &flat); err != nil {
		return store.Record{}, store.ErrRegistry.NewWithCause(store.CodeBadRecord, err)
	}

	rec := store.Record{
		PK:         popString(flat, "PK"),
		SK:         popString(flat, "SK"),
		GSI1PK:     popString(flat, "GSI1PK"),
		GSI1SK:     popString(flat, "GSI1SK"),
		GSI2PK:     popString(flat, "GSI2PK"),
		GSI2SK:     popString(flat, "GSI2SK"),
		GSI3PK:     popString(flat, "GSI3PK"),
		GSI3SK:     popString(flat, "GSI3SK"),
		EntityType: popString(flat, "entityType"),
		Attributes: flat,
	}
	return rec, nil
}

func setIfPresent(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func popString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	s, _ := v.(string)
	return s
}
