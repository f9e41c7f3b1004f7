package ingestion

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"
)

var dateHeaders = []string{"日期", "date"}

// identifierSources lists, per table, the source headers that may populate
// the table's identifier field, in order of preference.
var identifierSources = map[domain.TableType][]string{
	domain.TableShangzhi:        {"SKU编码", "SKU", "商品编码", "商品ID"},
	domain.TableJingzhuntong:    {"跟单SKU ID", "跟单SKUID", "SKU编码", "SKU", "商品ID"},
	domain.TableCustomerService: {"客服账号", "客服", "客服昵称"},
}

// MapOptions carries the caller context of a mapping run.
type MapOptions struct {
	// ShopID, when set, is resolved against Directory and injected as shop_name.
	ShopID    string
	Directory domain.Directory
	// FirstRowNumber is the spreadsheet row number of rows[0], used in logs
	// when RowNumbers does not cover a row.
	FirstRowNumber int
	// RowNumbers holds the spreadsheet row number of each input row.
	RowNumbers []int
	// Headers is the file's column order. When two columns resolve to the
	// same field the leftmost non-empty one wins.
	Headers []string
}

// SkippedRow records why a row was rejected.
type SkippedRow struct {
	RowNumber int      `json:"rowNumber"`
	Missing   []string `json:"missing"`
}

// MapResult is the outcome of a mapping run. len(Valid) == input rows - Skipped.
type MapResult struct {
	Valid       []domain.CanonicalRow
	Skipped     int
	SkippedRows []SkippedRow
	Missing     []domain.FieldCount
}

// Mapper converts raw rows into canonical rows for one schema.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper creates a mapper; a nil logger discards output.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mapper{logger: logger}
}

// Map normalizes rows against s. It returns a *domain.NoValidDataError when no
// row survives validation.
func (m *Mapper) Map(rows []domain.RawRow, s domain.Schema, opts MapOptions) (MapResult, error) {
	if opts.FirstRowNumber <= 0 {
		opts.FirstRowNumber = 1
	}

	lookup := buildHeaderLookup(s)
	order := uniqueHeaders(opts.Headers)
	required := s.RequiredFields()
	missingCounts := map[string]int{}

	var shop *domain.Shop
	if opts.ShopID != "" {
		if found, ok := opts.Directory.ShopByID(opts.ShopID); ok {
			shop = &found
		} else {
			m.logger.Warn("shop not found in directory, falling back to file column", "shop_id", opts.ShopID)
		}
	}

	result := MapResult{Valid: make([]domain.CanonicalRow, 0, len(rows))}
	for idx, raw := range rows {
		rowNumber := opts.FirstRowNumber + idx
		if idx < len(opts.RowNumbers) {
			rowNumber = opts.RowNumbers[idx]
		}
		out := m.mapRow(raw, orderedHeaders(raw, order), s, lookup, shop, opts.Directory)

		var missing []string
		for _, f := range required {
			if !out.Has(f.Key) {
				label := f.Label
				if label == "" {
					label = f.Key
				}
				missing = append(missing, label)
				missingCounts[label]++
			}
		}
		if len(missing) > 0 {
			result.Skipped++
			result.SkippedRows = append(result.SkippedRows, SkippedRow{RowNumber: rowNumber, Missing: missing})
			m.logger.Debug("row skipped", "row", rowNumber, "missing", missing)
			continue
		}
		result.Valid = append(result.Valid, out)
	}

	result.Missing = sortCounts(missingCounts)
	if result.Skipped > 0 {
		m.logger.Info("rows skipped during mapping", "table", s.Table, "skipped", result.Skipped, "valid", len(result.Valid))
	}
	if len(result.Valid) == 0 && len(rows) > 0 {
		return result, &domain.NoValidDataError{Rows: len(rows), Missing: result.Missing}
	}
	return result, nil
}

func (m *Mapper) mapRow(raw domain.RawRow, headers []string, s domain.Schema, lookup map[string]string, shop *domain.Shop, dir domain.Directory) domain.CanonicalRow {
	out := domain.CanonicalRow{}
	consumed := map[string]bool{}

	if s.HasField("date") {
		if header, ok := findHeader(headers, dateHeaders); ok {
			consumed[header] = true
			if v, ok := normalizeDate(raw[header]); ok {
				out["date"] = v
			}
		}
	}

	if s.HasField("shop_name") {
		if shop != nil {
			out["shop_name"] = domain.StringValue(shop.Name)
		} else {
			for _, h := range headers {
				if !isShopHeader(h) {
					continue
				}
				if v := coerceValue(domain.FieldTypeString, raw[h]); !v.IsEmpty() {
					out["shop_name"] = v
					consumed[h] = true
					break
				}
			}
		}
	}

	// A blank cell yields its coerced default only until a later column with
	// the same key supplies a value.
	filled := make(map[string]bool, len(out))
	for key, v := range out {
		filled[key] = !v.IsEmpty()
	}
	for _, h := range headers {
		if consumed[h] {
			continue
		}
		key, ok := resolveHeader(lookup, h)
		if !ok || filled[key] {
			continue
		}
		blank := cleanRaw(raw[h]) == nil
		if _, set := out[key]; blank && set {
			continue
		}
		if key == "date" {
			if v, ok := normalizeDate(raw[h]); ok {
				out[key] = v
				filled[key] = true
			}
			continue
		}
		def, _ := s.Field(key)
		out[key] = coerceValue(def.Type, raw[h])
		filled[key] = !blank
	}

	idField := s.Table.IdentifierField()
	if idField != "" && s.HasField(idField) && !out.Has(idField) {
		for _, source := range identifierSources[s.Table] {
			header, ok := findHeader(headers, []string{source})
			if !ok {
				continue
			}
			if v := coerceValue(domain.FieldTypeString, raw[header]); !v.IsEmpty() {
				out[idField] = v
				break
			}
		}
	}

	if s.Table == domain.TableCustomerService && s.HasField("shop_name") && !out.Has("shop_name") {
		if agent, ok := dir.AgentByAccount(out["agent_account"].Text()); ok && agent.ShopName != "" {
			out["shop_name"] = domain.StringValue(agent.ShopName)
		}
	}

	return out
}

// orderedHeaders lists the keys of raw in file column order. Keys missing
// from order follow in sorted order.
func orderedHeaders(raw domain.RawRow, order []string) []string {
	headers := make([]string, 0, len(raw))
	listed := make(map[string]bool, len(order))
	for _, h := range order {
		listed[h] = true
		if _, ok := raw[h]; ok {
			headers = append(headers, h)
		}
	}
	var rest []string
	for h := range raw {
		if !listed[h] {
			rest = append(rest, h)
		}
	}
	sort.Strings(rest)
	return append(headers, rest...)
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// buildHeaderLookup maps every accepted header spelling to a field key. The
// first registration of a spelling wins.
func buildHeaderLookup(s domain.Schema) map[string]string {
	lookup := map[string]string{}
	add := func(name, key string) {
		if name == "" {
			return
		}
		if _, exists := lookup[name]; !exists {
			lookup[name] = key
		}
	}
	for _, f := range s.Fields {
		add(f.Label, f.Key)
		for _, tag := range f.Tags {
			add(tag, f.Key)
		}
		add(f.Key, f.Key)
		trimmed := strings.TrimSpace(f.Label)
		add(trimmed, f.Key)
		add(strings.ToUpper(trimmed), f.Key)
	}
	return lookup
}

func resolveHeader(lookup map[string]string, header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	for _, candidate := range []string{header, trimmed, strings.ToUpper(trimmed)} {
		if key, ok := lookup[candidate]; ok {
			return key, true
		}
	}
	return "", false
}

// findHeader returns the first header, in the order of names, that equals one
// of names ignoring surrounding space and case.
func findHeader(headers []string, names []string) (string, bool) {
	for _, name := range names {
		for _, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return h, true
			}
		}
	}
	return "", false
}

func isShopHeader(header string) bool {
	h := strings.ToLower(strings.TrimSpace(header))
	if strings.Contains(h, "店铺") {
		return true
	}
	switch h {
	case "shop", "shop_name", "shopname", "shop name", "store":
		return true
	}
	return false
}

func sortCounts(counts map[string]int) []domain.FieldCount {
	out := make([]domain.FieldCount, 0, len(counts))
	for field, count := range counts {
		out = append(out, domain.FieldCount{Field: field, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Field < out[j].Field
	})
	return out
}
