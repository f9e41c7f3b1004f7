package schema

import "github.com/rpattn/opsdash/internal/domain"

func field(key, label string, typ domain.FieldType, required bool, tags ...string) domain.FieldDefinition {
	return domain.FieldDefinition{Key: key, Label: label, Type: typ, Required: required, Tags: tags}
}

// rate declares a REAL field holding a fraction, see domain.UnitFraction.
func rate(key, label string, tags ...string) domain.FieldDefinition {
	f := field(key, label, domain.FieldTypeReal, false, tags...)
	f.Unit = domain.UnitFraction
	return f
}

// DefaultSchemas returns the built-in schemas. Keys match the columns created
// by the migrations.
func DefaultSchemas() []domain.Schema {
	return []domain.Schema{
		{
			Table: domain.TableShangzhi,
			Fields: []domain.FieldDefinition{
				field("date", "日期", domain.FieldTypeString, true, "时间", "统计日期"),
				field("shop_name", "店铺名称", domain.FieldTypeString, false, "店铺"),
				field("sku_code", "SKU", domain.FieldTypeString, true, "SKU编码", "商品SKU"),
				field("product_id", "商品ID", domain.FieldTypeString, false, "商品编号"),
				field("product_name", "商品名称", domain.FieldTypeString, false, "商品标题"),
				field("brand", "品牌", domain.FieldTypeString, false),
				field("page_views", "浏览量", domain.FieldTypeInteger, false, "PV"),
				field("visitors", "访客数", domain.FieldTypeInteger, false, "UV"),
				field("cart_users", "加购人数", domain.FieldTypeInteger, false),
				field("paid_customers", "成交客户数", domain.FieldTypeInteger, false, "成交人数"),
				field("paid_orders", "成交单量", domain.FieldTypeInteger, false, "成交订单数"),
				field("paid_items", "成交商品件数", domain.FieldTypeInteger, false, "成交件数"),
				field("paid_amount", "成交金额", domain.FieldTypeNumeric, false, "销售额"),
				rate("conversion_rate", "成交转化率", "转化率"),
				field("refund_amount", "退款金额", domain.FieldTypeNumeric, false),
			},
		},
		{
			Table: domain.TableJingzhuntong,
			Fields: []domain.FieldDefinition{
				field("date", "日期", domain.FieldTypeString, true, "时间"),
				field("account_nickname", "账户昵称", domain.FieldTypeString, false, "账户"),
				field("tracked_sku_id", "跟单SKU ID", domain.FieldTypeString, true, "跟单SKUID"),
				field("plan_name", "计划名称", domain.FieldTypeString, false, "推广计划"),
				field("impressions", "展现数", domain.FieldTypeInteger, false, "展现量"),
				field("clicks", "点击数", domain.FieldTypeInteger, false, "点击量"),
				field("cost", "花费", domain.FieldTypeNumeric, false, "总花费"),
				rate("ctr", "点击率", "CTR"),
				field("cpc", "平均点击成本", domain.FieldTypeNumeric, false, "CPC"),
				field("orders", "总订单行", domain.FieldTypeInteger, false, "订单行"),
				field("order_amount", "总订单金额", domain.FieldTypeNumeric, false, "订单金额"),
				field("roi", "ROI", domain.FieldTypeReal, false, "投产比"),
				field("shop_name", "店铺名称", domain.FieldTypeString, false, "店铺"),
				field("report_time", "报表时间", domain.FieldTypeTimestamp, false),
			},
		},
		{
			Table: domain.TableCustomerService,
			Fields: []domain.FieldDefinition{
				field("date", "日期", domain.FieldTypeString, true, "时间"),
				field("agent_account", "客服账号", domain.FieldTypeString, true, "客服"),
				field("agent_name", "客服昵称", domain.FieldTypeString, false),
				field("shop_name", "店铺名称", domain.FieldTypeString, false, "店铺"),
				field("consultations", "咨询人数", domain.FieldTypeInteger, false, "咨询量"),
				field("receptions", "接待人数", domain.FieldTypeInteger, false, "接待量"),
				field("avg_response_seconds", "平均响应时间", domain.FieldTypeReal, false, "平均响应时长"),
				rate("satisfaction_rate", "满意率"),
				rate("inquiry_conversion_rate", "询单转化率"),
				field("sales_amount", "销售额", domain.FieldTypeNumeric, false, "客服销售额"),
				field("first_login_at", "首次登录时间", domain.FieldTypeTimestamp, false),
			},
		},
	}
}

// DefaultSchema returns the built-in schema of one table.
func DefaultSchema(table domain.TableType) (domain.Schema, bool) {
	for _, s := range DefaultSchemas() {
		if s.Table == table {
			return s, true
		}
	}
	return domain.Schema{}, false
}
