package enums

// InventoryTransactionType classifies rows of the append-only stock history.
type InventoryTransactionType string

const (
	InventoryTransactionSale       InventoryTransactionType = "SALE"
	InventoryTransactionRestock    InventoryTransactionType = "RESTOCK"
	InventoryTransactionAdjustment InventoryTransactionType = "ADJUSTMENT"
	InventoryTransactionReturn     InventoryTransactionType = "RETURN"
)

var validInventoryTransactionTypes = []InventoryTransactionType{
	InventoryTransactionSale,
	InventoryTransactionRestock,
	InventoryTransactionAdjustment,
	InventoryTransactionReturn,
}

func (t InventoryTransactionType) String() string {
	return string(t)
}

func (t InventoryTransactionType) IsValid() bool {
	for _, candidate := range validInventoryTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

