package mapping

import (
	"github.com/go-playground/validator/v10"

	"github.com/qbridge/backend/internal/domain/shared"
	"github.com/qbridge/backend/internal/domain/sync"
)

// Table-level domain errors
var (
	ErrTableInvalidRule   = shared.NewDomainError("TABLE_INVALID_RULE", "Field rule failed validation")
	ErrTableUnknownEntity = shared.NewDomainError("TABLE_UNKNOWN_ENTITY", "No field rules declared for entity type")
)

// FieldKind declares how a field's value is typed on the destination side
type FieldKind string

const (
	// KindText passes the value through as a string
	KindText FieldKind = "text"
	// KindAmount parses the value as a fixed-point decimal
	KindAmount FieldKind = "amount"
	// KindBool parses the value as a boolean ("true"/"false")
	KindBool FieldKind = "bool"
)

// Transform names an entity-specific value transform applied during
// translation. Transforms are symmetric: applying the inverse direction
// round-trips the original value(s).
type Transform string

const (
	// TransformNone copies the value unchanged
	TransformNone Transform = ""
	// TransformCombineName folds (FirstName, LastName) into a single
	// "LastName, FirstName" display value, and splits it back on the
	// inverse direction
	TransformCombineName Transform = "combine_name"
)

// FieldRule declares how one destination field is produced from source
// fields. Rules are interpreted by the generic translator traversal; the
// mapping data is swappable without touching logic.
type FieldRule struct {
	// Sources lists the source field names this rule consumes. Plain rules
	// use exactly one; TransformCombineName uses two (first, last).
	Sources []string `validate:"required,min=1,max=2,dive,required"`
	// Dest is the destination field name
	Dest string `validate:"required"`
	// Kind types the destination value
	Kind FieldKind `validate:"omitempty,oneof=text amount bool"`
	// Required marks destination fields whose absence is a validation failure
	Required bool
	// Default is used when every source field is empty
	Default string
	// Transform names the value transform, if any
	Transform Transform `validate:"omitempty,oneof=combine_name"`
}

// Table is the static field mapping table: per entity type, an ordered list
// of field rules. Consumed read-only by the translator.
type Table struct {
	rules map[sync.EntityType][]FieldRule
}

var validate = validator.New()

// NewTable builds a validated mapping table
func NewTable(rules map[sync.EntityType][]FieldRule) (*Table, error) {
	for entity, entityRules := range rules {
		if !entity.IsValid() {
			return nil, ErrTableUnknownEntity
		}
		for _, rule := range entityRules {
			if err := validate.Struct(rule); err != nil {
				return nil, ErrTableInvalidRule
			}
			if rule.Transform == TransformCombineName && len(rule.Sources) != 2 {
				return nil, ErrTableInvalidRule
			}
			if rule.Transform == TransformNone && len(rule.Sources) != 1 {
				return nil, ErrTableInvalidRule
			}
		}
	}
	return &Table{rules: rules}, nil
}

// Rules returns the ordered field rules for an entity type
func (t *Table) Rules(entity sync.EntityType) ([]FieldRule, error) {
	rules, ok := t.rules[entity]
	if !ok {
		return nil, ErrTableUnknownEntity
	}
	return rules, nil
}

// DefaultTable returns the built-in mapping table for the desktop-books to
// ERP direction. Source field names follow the desktop wire spelling,
// destination names the ERP model spelling.
func DefaultTable() *Table {
	table, err := NewTable(map[sync.EntityType][]FieldRule{
		sync.EntityItem: {
			{Sources: []string{"FullName"}, Dest: "name", Required: true},
			{Sources: []string{"SalesDesc"}, Dest: "description"},
			{Sources: []string{"SalesPrice"}, Dest: "list_price", Kind: KindAmount},
			{Sources: []string{"PurchaseCost"}, Dest: "standard_price", Kind: KindAmount},
			{Sources: []string{"IsActive"}, Dest: "active", Kind: KindBool, Default: "true"},
		},
		sync.EntityCustomer: {
			{Sources: []string{"CompanyName"}, Dest: "name", Required: true},
			{Sources: []string{"FirstName", "LastName"}, Dest: "contact_name", Transform: TransformCombineName},
			{Sources: []string{"Email"}, Dest: "email"},
			{Sources: []string{"Phone"}, Dest: "phone"},
			{Sources: []string{"BillAddress.Addr1"}, Dest: "street"},
			{Sources: []string{"BillAddress.City"}, Dest: "city"},
			{Sources: []string{"BillAddress.PostalCode"}, Dest: "zip"},
			{Sources: []string{"IsActive"}, Dest: "active", Kind: KindBool, Default: "true"},
		},
		sync.EntityVendor: {
			{Sources: []string{"CompanyName"}, Dest: "name", Required: true},
			{Sources: []string{"FirstName", "LastName"}, Dest: "contact_name", Transform: TransformCombineName},
			{Sources: []string{"Email"}, Dest: "email"},
			{Sources: []string{"Phone"}, Dest: "phone"},
			{Sources: []string{"VendorAddress.Addr1"}, Dest: "street"},
			{Sources: []string{"VendorAddress.City"}, Dest: "city"},
			{Sources: []string{"IsActive"}, Dest: "active", Kind: KindBool, Default: "true"},
		},
		sync.EntityInvoice: {
			{Sources: []string{"RefNumber"}, Dest: "ref", Required: true},
			{Sources: []string{"CustomerRef.FullName"}, Dest: "partner_name", Required: true},
			{Sources: []string{"TxnDate"}, Dest: "invoice_date"},
			{Sources: []string{"DueDate"}, Dest: "invoice_date_due"},
			{Sources: []string{"Subtotal"}, Dest: "amount_untaxed", Kind: KindAmount},
			{Sources: []string{"Memo"}, Dest: "narration"},
		},
		sync.EntityBill: {
			{Sources: []string{"RefNumber"}, Dest: "ref", Required: true},
			{Sources: []string{"VendorRef.FullName"}, Dest: "partner_name", Required: true},
			{Sources: []string{"TxnDate"}, Dest: "invoice_date"},
			{Sources: []string{"DueDate"}, Dest: "invoice_date_due"},
			{Sources: []string{"AmountDue"}, Dest: "amount_total", Kind: KindAmount},
			{Sources: []string{"Memo"}, Dest: "narration"},
		},
		sync.EntityCreditMemo: {
			{Sources: []string{"RefNumber"}, Dest: "ref", Required: true},
			{Sources: []string{"CustomerRef.FullName"}, Dest: "partner_name", Required: true},
			{Sources: []string{"TxnDate"}, Dest: "invoice_date"},
			{Sources: []string{"Subtotal"}, Dest: "amount_untaxed", Kind: KindAmount},
			{Sources: []string{"Memo"}, Dest: "narration"},
		},
		sync.EntityJournalEntry: {
			{Sources: []string{"RefNumber"}, Dest: "ref", Required: true},
			{Sources: []string{"TxnDate"}, Dest: "date"},
			{Sources: []string{"Memo"}, Dest: "narration"},
		},
	})
	if err != nil {
		// The built-in table is covered by tests; an invalid rule here is a
		// programming error.
		panic(err)
	}
	return table
}
