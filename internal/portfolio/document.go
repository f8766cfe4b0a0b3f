package portfolio

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// priceDigits matches the precision the price updater has always written.
const priceDigits = 5

// Document is an editable view of the data file. Edits go through the YAML
// node tree so comments, key order and untouched values survive a save.
type Document struct {
	path string
	root yaml.Node
}

// OpenDocument parses the data file at path for editing.
func OpenDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	d := &Document{path: path}
	if err := yaml.Unmarshal(data, &d.root); err != nil {
		return nil, fmt.Errorf("parse portfolio: %w", err)
	}
	if d.top() == nil {
		return nil, fmt.Errorf("parse portfolio: %s is not a YAML mapping", path)
	}
	return d, nil
}

func (d *Document) top() *yaml.Node {
	if d.root.Kind != yaml.DocumentNode || len(d.root.Content) == 0 {
		return nil
	}
	if m := d.root.Content[0]; m.Kind == yaml.MappingNode {
		return m
	}
	return nil
}

// SetCurrentPrice sets current_price on every open position of ticker and
// reports how many were updated. Closed positions are never touched.
func (d *Document) SetCurrentPrice(ticker string, price decimal.Decimal) int {
	n := 0
	for _, pos := range d.openPositions(ticker) {
		setScalar(ensureKey(pos, "current_price"), price.Round(priceDigits).String(), "")
		n++
	}
	return n
}

// SetTargets updates target_low and/or target_high of open positions of
// ticker; a nil bound is left unchanged.
func (d *Document) SetTargets(ticker string, low, high *decimal.Decimal) int {
	n := 0
	for _, pos := range d.openPositions(ticker) {
		if low != nil {
			setScalar(ensureKey(pos, "target_low"), low.Round(priceDigits).String(), "")
		}
		if high != nil {
			setScalar(ensureKey(pos, "target_high"), high.Round(priceDigits).String(), "")
		}
		n++
	}
	return n
}

// SetFXRate stores the rate of currency into base. The USD rate of a EUR
// portfolio lives in settings.usd_to_eur, every other rate in
// settings.fx_rates.
func (d *Document) SetFXRate(base, currency string, rate decimal.Decimal) {
	settings := ensureMapping(d.top(), "settings")
	value := rate.Round(4).String()
	if strings.EqualFold(base, "EUR") && strings.EqualFold(currency, "USD") {
		setScalar(ensureKey(settings, "usd_to_eur"), value, "")
		return
	}
	rates := ensureMapping(settings, "fx_rates")
	setScalar(ensureKey(rates, strings.ToUpper(currency)), value, "")
}

// SetLastUpdate records the day prices were last refreshed.
func (d *Document) SetLastUpdate(day string) {
	monitoring := ensureMapping(d.top(), "monitoring")
	n := ensureKey(monitoring, "last_update")
	setScalar(n, day, "!!str")
	n.Style = yaml.DoubleQuotedStyle
}

// Bytes encodes the edited document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, fmt.Errorf("encode portfolio: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode portfolio: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the document back to its path through a temporary file and
// a rename, so a crash never leaves a half-written data file.
func (d *Document) Save() error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp portfolio: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp portfolio: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp portfolio: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp portfolio: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("replace portfolio: %w", err)
	}
	return nil
}

func (d *Document) openPositions(ticker string) []*yaml.Node {
	seq := mapValue(d.top(), "positions")
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	var out []*yaml.Node
	for _, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		t := mapValue(item, "ticker")
		if t == nil || !strings.EqualFold(strings.TrimSpace(t.Value), ticker) {
			continue
		}
		if !nodeOpen(mapValue(item, "is_open")) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// nodeOpen decodes is_open the way Load does: absent or null means open,
// and every YAML boolean spelling is honoured. Values Load would reject
// count as closed so they are never edited.
func nodeOpen(n *yaml.Node) bool {
	if n == nil || n.ShortTag() == "!!null" {
		return true
	}
	var open bool
	if err := n.Decode(&open); err != nil {
		return false
	}
	return open
}

func mapValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// ensureKey returns the value node of key in m, appending a null entry when
// the key is absent.
func ensureKey(m *yaml.Node, key string) *yaml.Node {
	if v := mapValue(m, key); v != nil {
		return v
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	m.Content = append(m.Content, k, v)
	return v
}

func ensureMapping(m *yaml.Node, key string) *yaml.Node {
	v := ensureKey(m, key)
	if v.Kind != yaml.MappingNode {
		*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	return v
}

// setScalar rewrites n in place. An empty tag leaves the value plain so the
// encoder writes no explicit tag.
func setScalar(n *yaml.Node, value, tag string) {
	n.Kind = yaml.ScalarNode
	n.Tag = tag
	n.Value = value
	n.Style = 0
	n.Content = nil
}
