package iapkit

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// androidPurchaseSchema describes the JSON payload Play Billing attaches to a
// purchase record. Only the fields the session relies on downstream are
// required; the store is free to add more.
const androidPurchaseSchema = `{
	"type": "object",
	"properties": {
		"orderId": {"type": "string"},
		"packageName": {"type": "string"},
		"productId": {"type": "string"},
		"productIds": {
			"type": "array",
			"items": {"type": "string"}
		},
		"purchaseTime": {"type": "integer"},
		"purchaseState": {"type": "integer"},
		"purchaseToken": {"type": "string"},
		"quantity": {"type": "integer"},
		"acknowledged": {"type": "boolean"},
		"autoRenewing": {"type": "boolean"},
		"obfuscatedAccountId": {"type": "string"},
		"obfuscatedProfileId": {"type": "string"}
	},
	"required": ["purchaseToken", "purchaseTime"]
}`

var androidPurchaseSchemaLoader = gojsonschema.NewStringLoader(androidPurchaseSchema)

// validateAndroidPurchasePayload checks a purchase's originalJson against the
// expected Play Billing shape before the record is surfaced to listeners.
func validateAndroidPurchasePayload(originalJSON string) error {
	result, err := gojsonschema.Validate(androidPurchaseSchemaLoader, gojsonschema.NewStringLoader(originalJSON))
	if err != nil {
		return fmt.Errorf("parse purchase payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("purchase payload invalid: %s", strings.Join(msgs, "; "))
}
