package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in an expected document matches any actual value
// under the same key, as long as the key exists.
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics. Test-side convenience.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	// IgnoreExtraKeys drops top-level keys of the actual document that
	// the expected one does not mention.
	IgnoreExtraKeys bool `default:"true"`

	// CompareOnlyExpectedKeys prunes unexpected keys at every depth,
	// including inside arrays, so expectations can stay partial.
	CompareOnlyExpectedKeys bool `default:"false"`

	// AllowPresencePlaceholder enables PresencePlaceholder matching.
	AllowPresencePlaceholder bool `default:"true"`

	// NilToEmptyArray treats an actual null as equal to an expected
	// empty array.
	NilToEmptyArray bool `default:"true"`

	// IgnoreArrayOrder sorts arrays on both sides before comparing.
	IgnoreArrayOrder bool `default:"false"`

	// IgnoredFields removes the named keys from both documents wherever
	// they appear. Useful for timestamps.
	IgnoredFields []string `default:""`

	// Coloring colorizes the rendered diff.
	Coloring bool `default:"false"`
}

// JSONOption is a functional option for configuring a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}

func WithCompareOnlyExpectedKeys(enable bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.CompareOnlyExpectedKeys = enable }
}

func WithAllowPresencePlaceholder(allow bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.AllowPresencePlaceholder = allow }
}

func WithNilToEmptyArray(enable bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.NilToEmptyArray = enable }
}

func WithIgnoreArrayOrder(enable bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoreArrayOrder = enable }
}

func WithIgnoredFields(fields ...string) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoredFields = fields }
}

func WithColoring(enable bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.Coloring = enable }
}

// JSONAsserter compares JSON documents structurally and reports
// mismatches as a rendered diff of the expected document.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a JSONAsserter with default options.
func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options and returns the asserter.
func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// WithOptionsStruct replaces the options wholesale.
func (ja *JSONAsserter) WithOptionsStruct(opts JSONAssertOptions) *JSONAsserter {
	ja.options = opts
	return ja
}

// GetOptions returns a copy of the current options.
func (ja *JSONAsserter) GetOptions() JSONAssertOptions {
	return ja.options
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON mismatch:\n%s", diff)
	}
}

// AssertValue marshals v and compares it against expectedJSON.
func (ja *JSONAsserter) AssertValue(v any, expectedJSON string) {
	ja.Assert(MustJSON(v), expectedJSON)
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only; wrap root-level arrays.
	if isArray(expected) && isArray(actual) {
		expected = map[string]interface{}{"items": expected}
		actual = map[string]interface{}{"items": actual}
	}

	for _, field := range ja.options.IgnoredFields {
		removeField(expected, field)
		removeField(actual, field)
	}
	if ja.options.NilToEmptyArray {
		normalizeNilArrays(actual, expected)
	}
	if ja.options.AllowPresencePlaceholder {
		applyPresence(actual, expected)
	}
	if ja.options.CompareOnlyExpectedKeys {
		pruneExtraKeys(actual, expected)
	} else if ja.options.IgnoreExtraKeys {
		pruneTopLevelKeys(actual, expected)
	}
	if ja.options.IgnoreArrayOrder {
		expected = sortArrays(expected)
		actual = sortArrays(actual)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       ja.options.Coloring,
	})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("diff rendering failed: %v", err)
	}
	return out
}

func isArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

// removeField deletes every occurrence of the named key, at any depth.
func removeField(v interface{}, field string) {
	switch node := v.(type) {
	case map[string]interface{}:
		delete(node, field)
		for _, child := range node {
			removeField(child, field)
		}
	case []interface{}:
		for _, child := range node {
			removeField(child, field)
		}
	}
}

// normalizeNilArrays rewrites an actual null to [] wherever the
// expected document carries an array at the same path.
func normalizeNilArrays(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k, expChild := range exp {
			actChild, found := act[k]
			if !found {
				continue
			}
			if isArray(expChild) && actChild == nil {
				act[k] = []interface{}{}
				continue
			}
			normalizeNilArrays(actChild, expChild)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			if isArray(exp[i]) && act[i] == nil {
				act[i] = []interface{}{}
				continue
			}
			normalizeNilArrays(act[i], exp[i])
		}
	}
}

// applyPresence replaces actual values with the placeholder wherever
// the expected document asks only for presence and the key exists.
func applyPresence(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k, expChild := range exp {
			actChild, found := act[k]
			if !found {
				continue
			}
			if s, isStr := expChild.(string); isStr && s == PresencePlaceholder {
				act[k] = PresencePlaceholder
				continue
			}
			applyPresence(actChild, expChild)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			if s, isStr := exp[i].(string); isStr && s == PresencePlaceholder {
				act[i] = PresencePlaceholder
				continue
			}
			applyPresence(act[i], exp[i])
		}
	}
}

// pruneTopLevelKeys removes root keys the expected document does not
// mention.
func pruneTopLevelKeys(actual, expected interface{}) {
	act, ok := actual.(map[string]interface{})
	if !ok {
		return
	}
	exp, ok := expected.(map[string]interface{})
	if !ok {
		return
	}
	for k := range act {
		if _, found := exp[k]; !found {
			delete(act, k)
		}
	}
}

// pruneExtraKeys deletes keys from actual that expected does not have,
// at every depth, aligning arrays positionally.
func pruneExtraKeys(actual, expected interface{}) {
	switch act := actual.(type) {
	case map[string]interface{}:
		exp, ok := expected.(map[string]interface{})
		if !ok {
			return
		}
		for k := range act {
			expChild, found := exp[k]
			if !found {
				delete(act, k)
				continue
			}
			pruneExtraKeys(act[k], expChild)
		}
	case []interface{}:
		exp, ok := expected.([]interface{})
		if !ok {
			return
		}
		for i := range act {
			if i < len(exp) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

// sortArrays orders every array by the canonical JSON of its elements,
// innermost first, so order-insensitive documents compare equal.
func sortArrays(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			node[k] = sortArrays(child)
		}
		return node
	case []interface{}:
		for i, child := range node {
			node[i] = sortArrays(child)
		}
		sort.SliceStable(node, func(i, j int) bool {
			bi, _ := json.Marshal(node[i])
			bj, _ := json.Marshal(node[j])
			return string(bi) < string(bj)
		})
		return node
	default:
		return v
	}
}
