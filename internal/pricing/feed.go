package pricing

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type FeedFormat string

const (
	FormatJSON FeedFormat = "json"
	FormatXML  FeedFormat = "xml"
	FormatCSV  FeedFormat = "csv"
)

func (f FeedFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatXML, FormatCSV:
		return true
	}
	return false
}

// FeedShape names the recognized layout of a feed document.
type FeedShape string

const (
	ShapeUnknown        FeedShape = ""
	ShapeItemList       FeedShape = "item_list"       // [{sku, price}] or {"items": [...]}
	ShapeFlatMap        FeedShape = "flat_map"        // {"SKU": price}
	ShapeNestedProducts FeedShape = "nested_products" // {"products": {"SKU": {"price": p}}}
	ShapeXMLItems       FeedShape = "xml_items"       // <items><item><sku/><price/></item></items>
	ShapeCSV            FeedShape = "csv"             // header sku,price
)

// ErrUnrecognizedFeed means the document parsed but matched no known shape.
var ErrUnrecognizedFeed = errors.New("unrecognized feed shape")

// FeedItem is one normalized price entry. For map-shaped feeds only SKU is
// known and carries the map key.
type FeedItem struct {
	SKU   string
	UPC   string
	Name  string
	Price decimal.Decimal
}

// Key returns the identifier to match on: sku, upc or name. Missing
// attributes fall back to SKU.
func (it FeedItem) Key(matchBy string) string {
	switch matchBy {
	case "upc":
		if it.UPC != "" {
			return it.UPC
		}
	case "name":
		if it.Name != "" {
			return it.Name
		}
	}
	return it.SKU
}

// ItemError reports one malformed entry; the rest of the feed is still used.
type ItemError struct {
	SKU   string `json:"sku"`
	Error string `json:"error"`
}

// Feed is the result of parsing a feed document. Err is set when the whole
// document is unusable, in which case Items is empty.
type Feed struct {
	Shape      FeedShape
	Items      []FeedItem
	ItemErrors []ItemError
	Err        error
}

// Prices collapses the items into a SKU → price map. Later duplicates win.
func (f Feed) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(f.Items))
	for _, it := range f.Items {
		out[it.SKU] = it.Price
	}
	return out
}

// ParseFeed normalizes a supplier or competitor feed. It never panics: any
// failure is reported through Feed.Err or Feed.ItemErrors.
func ParseFeed(format FeedFormat, body []byte) (feed Feed) {
	defer func() {
		if r := recover(); r != nil {
			feed = Feed{Err: fmt.Errorf("parse feed: %v", r)}
		}
	}()
	switch format {
	case FormatXML:
		return parseXML(body)
	case FormatCSV:
		return parseCSV(body)
	case FormatJSON, "":
		return parseJSON(body)
	default:
		return Feed{Err: fmt.Errorf("unsupported feed format %q", format)}
	}
}

// ── JSON ─────────────────────────────────────────────────────────────────────

func parseJSON(body []byte) Feed {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Feed{Err: fmt.Errorf("parse json feed: %w", err)}
	}

	switch v := doc.(type) {
	case []any:
		return jsonItemList(v)
	case map[string]any:
		if items, ok := v["items"].([]any); ok {
			return jsonItemList(items)
		}
		if products, ok := v["products"].(map[string]any); ok && allObjects(products) {
			return jsonNested(products)
		}
		if allScalars(v) && len(v) > 0 {
			return jsonFlat(v)
		}
	}
	return Feed{Err: ErrUnrecognizedFeed}
}

func jsonItemList(items []any) Feed {
	f := Feed{Shape: ShapeItemList}
	for i, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: fmt.Sprintf("#%d", i), Error: "entry is not an object"})
			continue
		}
		sku := scalarString(obj["sku"])
		if sku == "" {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: fmt.Sprintf("#%d", i), Error: "missing sku"})
			continue
		}
		price, err := parsePrice(obj["price"])
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: sku, Error: err.Error()})
			continue
		}
		f.Items = append(f.Items, FeedItem{
			SKU:   sku,
			UPC:   scalarString(obj["upc"]),
			Name:  scalarString(obj["name"]),
			Price: price,
		})
	}
	return f
}

func jsonFlat(m map[string]any) Feed {
	f := Feed{Shape: ShapeFlatMap}
	for _, sku := range sortedKeys(m) {
		price, err := parsePrice(m[sku])
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: sku, Error: err.Error()})
			continue
		}
		f.Items = append(f.Items, FeedItem{SKU: sku, Price: price})
	}
	return f
}

func jsonNested(products map[string]any) Feed {
	f := Feed{Shape: ShapeNestedProducts}
	for _, sku := range sortedKeys(products) {
		details := products[sku].(map[string]any)
		price, err := parsePrice(details["price"])
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: sku, Error: err.Error()})
			continue
		}
		f.Items = append(f.Items, FeedItem{
			SKU:   sku,
			UPC:   scalarString(details["upc"]),
			Name:  scalarString(details["name"]),
			Price: price,
		})
	}
	return f
}

func allObjects(m map[string]any) bool {
	for _, v := range m {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allScalars(m map[string]any) bool {
	for _, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

func parsePrice(v any) (decimal.Decimal, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return decimal.Zero, errors.New("missing price")
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, errors.New("missing price")
		}
	case float64:
		return positive(decimal.NewFromFloat(x))
	default:
		return decimal.Zero, fmt.Errorf("invalid price %v", v)
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	return positive(d)
}

func positive(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be > 0, got %s", d)
	}
	return d.Round(2), nil
}

// ── XML ──────────────────────────────────────────────────────────────────────

type xmlFeed struct {
	XMLName xml.Name  `xml:"items"`
	Items   []xmlItem `xml:"item"`
}

type xmlItem struct {
	SKU   string `xml:"sku"`
	UPC   string `xml:"upc"`
	Name  string `xml:"name"`
	Price string `xml:"price"`
}

func parseXML(body []byte) Feed {
	var doc xmlFeed
	if err := xml.Unmarshal(body, &doc); err != nil {
		var unexpected xml.UnmarshalError
		if errors.As(err, &unexpected) {
			return Feed{Err: ErrUnrecognizedFeed}
		}
		return Feed{Err: fmt.Errorf("parse xml feed: %w", err)}
	}
	f := Feed{Shape: ShapeXMLItems}
	for i, it := range doc.Items {
		sku := strings.TrimSpace(it.SKU)
		if sku == "" {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: fmt.Sprintf("#%d", i), Error: "missing sku"})
			continue
		}
		price, err := parsePrice(it.Price)
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: sku, Error: err.Error()})
			continue
		}
		f.Items = append(f.Items, FeedItem{
			SKU:   sku,
			UPC:   strings.TrimSpace(it.UPC),
			Name:  strings.TrimSpace(it.Name),
			Price: price,
		})
	}
	return f
}

// ── CSV ──────────────────────────────────────────────────────────────────────

func parseCSV(body []byte) Feed {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Feed{Err: fmt.Errorf("parse csv feed: %w", err)}
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	skuCol, okSKU := cols["sku"]
	priceCol, okPrice := cols["price"]
	if !okSKU || !okPrice {
		return Feed{Err: ErrUnrecognizedFeed}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	f := Feed{Shape: ShapeCSV}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: fmt.Sprintf("line %d", line), Error: err.Error()})
			continue
		}
		if skuCol >= len(rec) || strings.TrimSpace(rec[skuCol]) == "" {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: fmt.Sprintf("line %d", line), Error: "missing sku"})
			continue
		}
		sku := strings.TrimSpace(rec[skuCol])
		var raw string
		if priceCol < len(rec) {
			raw = rec[priceCol]
		}
		price, err := parsePrice(raw)
		if err != nil {
			f.ItemErrors = append(f.ItemErrors, ItemError{SKU: sku, Error: err.Error()})
			continue
		}
		f.Items = append(f.Items, FeedItem{SKU: sku, UPC: field(rec, "upc"), Name: field(rec, "name"), Price: price})
	}
	return f
}
