package schema

import (
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/upsert"
)

// ColumnSpec declares one typed, queryable column of a synced object table and
// where in the raw payload its value lives.  The raw payload itself stays the
// source of truth; these columns exist for indexing and joins.
type ColumnSpec struct {
	Name string
	Type string
	Path []string
}

// ObjectSchema is the persistence configuration for one remote object type.
type ObjectSchema struct {
	Object         domain.ObjectType
	Table          string
	ListPath       string
	ConflictTarget []string
	Columns        []ColumnSpec
}

var idColumn = ColumnSpec{Name: "id", Type: "text", Path: []string{"id"}}
var createdColumn = ColumnSpec{Name: "created", Type: "bigint", Path: []string{"created"}}

var objectSchemas = []ObjectSchema{
	{
		Object:         "customer",
		Table:          "customers",
		ListPath:       "/v1/customers",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "email", Type: "text", Path: []string{"email"}},
			{Name: "name", Type: "text", Path: []string{"name"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "delinquent", Type: "boolean", Path: []string{"delinquent"}},
			createdColumn,
		},
	},
	{
		Object:         "product",
		Table:          "products",
		ListPath:       "/v1/products",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "name", Type: "text", Path: []string{"name"}},
			{Name: "active", Type: "boolean", Path: []string{"active"}},
			{Name: "default_price", Type: "text", Path: []string{"default_price"}},
			createdColumn,
		},
	},
	{
		Object:         "price",
		Table:          "prices",
		ListPath:       "/v1/prices",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "product", Type: "text", Path: []string{"product"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "unit_amount", Type: "bigint", Path: []string{"unit_amount"}},
			{Name: "active", Type: "boolean", Path: []string{"active"}},
			{Name: "recurring_interval", Type: "text", Path: []string{"recurring", "interval"}},
			createdColumn,
		},
	},
	{
		Object:         "plan",
		Table:          "plans",
		ListPath:       "/v1/plans",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "product", Type: "text", Path: []string{"product"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			{Name: "interval", Type: "text", Path: []string{"interval"}},
			{Name: "active", Type: "boolean", Path: []string{"active"}},
			createdColumn,
		},
	},
	{
		Object:         "subscription",
		Table:          "subscriptions",
		ListPath:       "/v1/subscriptions",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "current_period_start", Type: "bigint", Path: []string{"current_period_start"}},
			{Name: "current_period_end", Type: "bigint", Path: []string{"current_period_end"}},
			{Name: "cancel_at_period_end", Type: "boolean", Path: []string{"cancel_at_period_end"}},
			createdColumn,
		},
	},
	{
		Object:         "subscription_item",
		Table:          "subscription_items",
		ListPath:       "",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "subscription", Type: "text", Path: []string{"subscription"}},
			{Name: "price", Type: "text", Path: []string{"price"}},
			{Name: "quantity", Type: "bigint", Path: []string{"quantity"}},
			createdColumn,
		},
	},
	{
		Object:         "invoice",
		Table:          "invoices",
		ListPath:       "/v1/invoices",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "subscription", Type: "text", Path: []string{"subscription"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "total", Type: "bigint", Path: []string{"total"}},
			{Name: "amount_due", Type: "bigint", Path: []string{"amount_due"}},
			{Name: "amount_paid", Type: "bigint", Path: []string{"amount_paid"}},
			createdColumn,
		},
	},
	{
		Object:         "invoice_line_item",
		Table:          "invoice_line_items",
		ListPath:       "",
		ConflictTarget: []string{"invoice_id", "id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "invoice_id", Type: "text", Path: []string{"invoice_id"}},
			{Name: "price", Type: "text", Path: []string{"price"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "quantity", Type: "bigint", Path: []string{"quantity"}},
		},
	},
	{
		Object:         "charge",
		Table:          "charges",
		ListPath:       "/v1/charges",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "invoice", Type: "text", Path: []string{"invoice"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			{Name: "paid", Type: "boolean", Path: []string{"paid"}},
			{Name: "refunded", Type: "boolean", Path: []string{"refunded"}},
			createdColumn,
		},
	},
	{
		Object:         "payment_intent",
		Table:          "payment_intents",
		ListPath:       "/v1/payment_intents",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			createdColumn,
		},
	},
	{
		Object:         "payment_method",
		Table:          "payment_methods",
		ListPath:       "",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "type", Type: "text", Path: []string{"type"}},
			createdColumn,
		},
	},
	{
		Object:         "setup_intent",
		Table:          "setup_intents",
		ListPath:       "/v1/setup_intents",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "usage", Type: "text", Path: []string{"usage"}},
			createdColumn,
		},
	},
	{
		Object:         "refund",
		Table:          "refunds",
		ListPath:       "/v1/refunds",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "charge", Type: "text", Path: []string{"charge"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "currency", Type: "text", Path: []string{"currency"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			createdColumn,
		},
	},
	{
		Object:         "dispute",
		Table:          "disputes",
		ListPath:       "/v1/disputes",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "charge", Type: "text", Path: []string{"charge"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "reason", Type: "text", Path: []string{"reason"}},
			{Name: "amount", Type: "bigint", Path: []string{"amount"}},
			createdColumn,
		},
	},
	{
		Object:         "credit_note",
		Table:          "credit_notes",
		ListPath:       "/v1/credit_notes",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "invoice", Type: "text", Path: []string{"invoice"}},
			{Name: "customer", Type: "text", Path: []string{"customer"}},
			{Name: "status", Type: "text", Path: []string{"status"}},
			{Name: "total", Type: "bigint", Path: []string{"total"}},
			createdColumn,
		},
	},
	{
		Object:         "tax_rate",
		Table:          "tax_rates",
		ListPath:       "/v1/tax_rates",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "display_name", Type: "text", Path: []string{"display_name"}},
			{Name: "percentage", Type: "numeric", Path: []string{"percentage"}},
			{Name: "active", Type: "boolean", Path: []string{"active"}},
			{Name: "inclusive", Type: "boolean", Path: []string{"inclusive"}},
			createdColumn,
		},
	},
	{
		Object:         "event",
		Table:          "events",
		ListPath:       "/v1/events",
		ConflictTarget: []string{"id"},
		Columns: []ColumnSpec{
			idColumn,
			{Name: "type", Type: "text", Path: []string{"type"}},
			{Name: "api_version", Type: "text", Path: []string{"api_version"}},
			createdColumn,
		},
	},
}

// eventObjectNames maps the payload's own "object" discriminator field to the
// object type where it differs from the type name.
var eventObjectNames = map[string]domain.ObjectType{
	"line_item": "invoice_line_item",
}

func Lookup(objectType domain.ObjectType) (*ObjectSchema, bool) {
	for i := range objectSchemas {
		if objectSchemas[i].Object == objectType {
			return &objectSchemas[i], true
		}
	}
	return nil, false
}

// ForPayloadObject resolves a schema from the "object" field carried inside a
// webhook payload.
func ForPayloadObject(objectName string) (*ObjectSchema, bool) {
	if mapped, ok := eventObjectNames[objectName]; ok {
		return Lookup(mapped)
	}
	return Lookup(domain.ObjectType(objectName))
}

// SupportedSyncObjects returns the object types the engine can backfill.
// Types without a list endpoint arrive through webhooks or embedded lists only.
func SupportedSyncObjects() []domain.ObjectType {
	var supported []domain.ObjectType
	for i := range objectSchemas {
		if objectSchemas[i].ListPath != "" {
			supported = append(supported, objectSchemas[i].Object)
		}
	}
	return supported
}

// ExtractColumns pulls the declared typed columns out of a raw payload.
// Reference fields may arrive expanded (an embedded object instead of an id);
// those collapse to the embedded object's id.
func (s *ObjectSchema) ExtractColumns(payload map[string]interface{}) []upsert.Column {
	columns := make([]upsert.Column, 0, len(s.Columns))
	for _, spec := range s.Columns {
		columns = append(columns, upsert.Column{
			Name:  spec.Name,
			Type:  spec.Type,
			Value: extractValue(payload, spec.Path),
		})
	}
	return columns
}

func extractValue(payload map[string]interface{}, path []string) interface{} {
	var current interface{} = payload
	for _, key := range path {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = node[key]
	}

	if expanded, ok := current.(map[string]interface{}); ok {
		return expanded["id"]
	}

	return current
}
