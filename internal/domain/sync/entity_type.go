package sync

// EntityType identifies one class of business records carried through a
// synchronization run.
type EntityType string

// Supported entity types, in wire spelling.
const (
	EntityItem         EntityType = "ITEM"
	EntityCustomer     EntityType = "CUSTOMER"
	EntityVendor       EntityType = "VENDOR"
	EntityInvoice      EntityType = "INVOICE"
	EntityBill         EntityType = "BILL"
	EntityCreditMemo   EntityType = "CREDIT_MEMO"
	EntityJournalEntry EntityType = "JOURNAL_ENTRY"
)

// EntityOrder returns the fixed sync priority order. The order follows
// referential dependency: a transaction line cannot resolve a product or
// partner reference that has not been synced yet.
func EntityOrder() []EntityType {
	return []EntityType{
		EntityItem,
		EntityCustomer,
		EntityVendor,
		EntityInvoice,
		EntityBill,
		EntityCreditMemo,
		EntityJournalEntry,
	}
}

// IsValid returns true if the entity type is one of the supported types
func (e EntityType) IsValid() bool {
	switch e {
	case EntityItem, EntityCustomer, EntityVendor, EntityInvoice,
		EntityBill, EntityCreditMemo, EntityJournalEntry:
		return true
	}
	return false
}
