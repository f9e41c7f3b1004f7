package schema

import (
	"context"
	"testing"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchemasAreValid(t *testing.T) {
	for _, s := range DefaultSchemas() {
		require.NoError(t, s.Validate(), "schema %s", s.Table)
		assert.True(t, s.HasField(s.Table.IdentifierField()), "schema %s lacks its identifier field", s.Table)
		assert.True(t, s.HasField("date"))
	}
}

func TestRegistryUpdatePersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	store := settings.NewStore(settings.NewMemoryBackend())
	reg := NewRegistry(store)

	require.NoError(t, reg.AddField(ctx, domain.TableShangzhi, domain.FieldDefinition{
		Key:   "  coupon_amount ",
		Label: "优惠金额",
		Type:  "numeric",
	}))

	reloaded := NewRegistry(store)
	require.NoError(t, reloaded.Load(ctx))

	s, err := reloaded.Get(domain.TableShangzhi)
	require.NoError(t, err)
	f, ok := s.Field("coupon_amount")
	require.True(t, ok)
	assert.Equal(t, domain.FieldTypeNumeric, f.Type)

	cs, err := reloaded.Get(domain.TableCustomerService)
	require.NoError(t, err)
	def, _ := DefaultSchema(domain.TableCustomerService)
	assert.Equal(t, def, cs)
}

func TestRegistryRejectsDuplicateKeys(t *testing.T) {
	reg := NewRegistry(settings.NewStore(settings.NewMemoryBackend()))

	err := reg.AddField(context.Background(), domain.TableShangzhi, domain.FieldDefinition{
		Key: "sku_code", Label: "另一个SKU", Type: domain.FieldTypeString,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field key")
}

func TestRelabelKeepsOldLabelAsTag(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(settings.NewStore(settings.NewMemoryBackend()))

	require.NoError(t, reg.RelabelField(ctx, domain.TableShangzhi, "paid_amount", "成交金额(元)"))

	s, err := reg.Get(domain.TableShangzhi)
	require.NoError(t, err)
	f, _ := s.Field("paid_amount")
	assert.Equal(t, "成交金额(元)", f.Label)
	assert.Contains(t, f.Tags, "成交金额")

	assert.Error(t, reg.RelabelField(ctx, domain.TableShangzhi, "nope", "x"))
}

func TestGetReturnsCopy(t *testing.T) {
	reg := NewRegistry(nil)
	s, err := reg.Get(domain.TableShangzhi)
	require.NoError(t, err)
	s.Fields[0].Label = "changed"

	again, _ := reg.Get(domain.TableShangzhi)
	assert.Equal(t, "日期", again.Fields[0].Label)
}

func TestLoadRejectsInvalidDocumentWithoutPartialSwap(t *testing.T) {
	ctx := context.Background()
	store := settings.NewStore(settings.NewMemoryBackend())

	shangzhi, _ := DefaultSchema(domain.TableShangzhi)
	shangzhi.Fields = append(shangzhi.Fields, domain.FieldDefinition{Key: "coupon_amount", Label: "优惠金额", Type: domain.FieldTypeNumeric})
	broken, _ := DefaultSchema(domain.TableCustomerService)
	broken.Fields = append(broken.Fields, domain.FieldDefinition{Key: "date", Label: "重复", Type: domain.FieldTypeString})
	require.NoError(t, store.Save(ctx, settings.KeySchemas, []domain.Schema{shangzhi, broken}))

	reg := NewRegistry(store)
	err := reg.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field key")

	s, err := reg.Get(domain.TableShangzhi)
	require.NoError(t, err)
	assert.False(t, s.HasField("coupon_amount"))
}

func TestRateFieldsAreFractions(t *testing.T) {
	for _, table := range []domain.TableType{domain.TableShangzhi, domain.TableJingzhuntong, domain.TableCustomerService} {
		s, _ := DefaultSchema(table)
		for _, f := range s.Fields {
			if f.Unit == domain.UnitFraction {
				assert.Equal(t, domain.FieldTypeReal, f.Type, "%s.%s", table, f.Key)
			}
		}
	}
	s, _ := DefaultSchema(domain.TableJingzhuntong)
	ctr, _ := s.Field("ctr")
	assert.Equal(t, domain.UnitFraction, ctr.Unit)
	roi, _ := s.Field("roi")
	assert.Empty(t, roi.Unit)
}
