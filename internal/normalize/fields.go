package normalize

import (
	"fmt"
	"strings"
)

// RawRow is one record of a broker export, keyed by the broker's column names
type RawRow map[string]interface{}

// Field is a canonical trade attribute
type Field string

const (
	FieldSymbol     Field = "symbol"
	FieldDirection  Field = "direction"
	FieldQuantity   Field = "quantity"
	FieldEntryPrice Field = "entry_price"
	FieldExitPrice  Field = "exit_price"
	FieldBuyPrice   Field = "buy_price"
	FieldSellPrice  Field = "sell_price"
	FieldFees       Field = "fees"
	FieldPnL        Field = "pnl"
	FieldEntryTime  Field = "entry_time"
	FieldExitTime   Field = "exit_time"
	FieldBuyTime    Field = "buy_time"
	FieldSellTime   Field = "sell_time"
	FieldDate       Field = "date"
	FieldBuyFillID  Field = "buy_fill_id"
	FieldSellFillID Field = "sell_fill_id"
)

// FieldMap lists, per canonical attribute, the broker column names that may
// carry it, highest priority first. Supporting a new broker means adding
// candidates here.
type FieldMap map[Field][]string

// DefaultFieldMap covers generic exports plus the Tradovate performance and
// TopstepX trade exports.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		FieldSymbol:     {"symbol", "ticker", "instrument", "contract", "contractName", "market", "product"},
		FieldDirection:  {"direction", "side", "type", "action", "position", "buySell"},
		FieldQuantity:   {"quantity", "qty", "size", "shares", "contracts", "filledQty", "volume"},
		FieldEntryPrice: {"entryPrice", "entry", "openPrice", "avgEntryPrice", "priceOpen"},
		FieldExitPrice:  {"exitPrice", "exit", "closePrice", "avgExitPrice", "priceClose"},
		FieldBuyPrice:   {"buyPrice", "avgBuyPrice", "boughtPrice"},
		FieldSellPrice:  {"sellPrice", "avgSellPrice", "soldPrice"},
		FieldFees:       {"fees", "fee", "totalFees", "commission", "commissions"},
		FieldPnL:        {"pnl", "p&l", "profit", "profitLoss", "realizedPnl", "netPnl", "netProfit", "gainLoss"},
		FieldEntryTime:  {"entryTime", "enteredAt", "openTime", "openedAt", "entryDate", "entryTimestamp"},
		FieldExitTime:   {"exitTime", "exitedAt", "closeTime", "closedAt", "exitDate", "exitTimestamp"},
		FieldBuyTime:    {"boughtTimestamp", "buyTime", "buyTimestamp"},
		FieldSellTime:   {"soldTimestamp", "sellTime", "sellTimestamp"},
		FieldDate:       {"date", "tradeDate", "tradeDay", "day"},
		FieldBuyFillID:  {"buyFillId", "buyFill", "buyOrderId"},
		FieldSellFillID: {"sellFillId", "sellFill", "sellOrderId"},
	}
}

// With returns a copy of the map with extra candidates appended for field
func (m FieldMap) With(field Field, candidates ...string) FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	out[field] = append(out[field], candidates...)
	return out
}

// normalizeKey folds case and drops separators so "Entry Price",
// "entry_price" and "entryPrice" compare equal
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// index maps normalized column names back to the row's original keys.
// The first key wins when two columns normalize to the same name.
func (r RawRow) index() map[string]string {
	idx := make(map[string]string, len(r))
	for key := range r {
		nk := normalizeKey(key)
		if existing, ok := idx[nk]; !ok || key < existing {
			idx[nk] = key
		}
	}
	return idx
}

// Lookup returns the first non-blank value among the candidate columns
func (r RawRow) Lookup(candidates []string) (interface{}, string, bool) {
	idx := r.index()
	for _, candidate := range candidates {
		key, ok := idx[normalizeKey(candidate)]
		if !ok {
			continue
		}
		value := r[key]
		if isBlank(value) {
			continue
		}
		return value, key, true
	}
	return nil, "", false
}

// LookupString returns the first non-blank candidate rendered as a trimmed string
func (r RawRow) LookupString(candidates []string) (string, bool) {
	value, _, ok := r.Lookup(candidates)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(stringify(value))
	return s, s != ""
}

func isBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(v)
		return s == "" || strings.EqualFold(s, "null")
	}
	return false
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprint(v)
	}
}
