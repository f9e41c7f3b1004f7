package bulkwrite

import "github.com/rpattn/opsdash/internal/domain"

// conflictKeys must match the unique constraints created by the migrations.
var conflictKeys = map[string][]string{
	domain.FactShangzhi:        {"date", "sku_code"},
	domain.FactJingzhuntong:    {"date", "account_nickname", "tracked_sku_id", "cost"},
	domain.FactCustomerService: {"date", "agent_account"},
	domain.DimSKUs:             {"sku_code"},
	domain.DimShops:            {"shop_id"},
}

// ConflictKey returns the upsert identity of table, or nil for tables written
// with plain inserts.
func ConflictKey(table string) []string {
	key, ok := conflictKeys[table]
	if !ok {
		return nil
	}
	return append([]string(nil), key...)
}
