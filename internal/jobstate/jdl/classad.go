// Package jdl reads and writes job descriptions written in the ClassAd-like job description language:
//
//	[
//	    Executable = "/bin/echo";
//	    Arguments = "hello";
//	    CPUTime = 3600;
//	    Site = {"LCG.CERN.ch", "LCG.IN2P3.fr"};
//	    JobRequirements = [ OwnerGroup = "lhcb_user"; ];
//	]
//
// Attribute names are case-insensitive. Values are quoted strings, lists in braces, nested
// ads in brackets, or free-form expressions which are kept verbatim.
package jdl

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Kind int

const (
	StringValue Kind = iota
	ListValue
	AdValue
	ExpressionValue
)

type Value struct {
	Kind Kind
	// Unquoted contents of a string value
	Str string
	// Elements of a list value
	List []Value
	// Source text for ad and expression values
	Raw string
}

func String(s string) Value {
	return Value{Kind: StringValue, Str: s}
}

func Expression(raw string) Value {
	return Value{Kind: ExpressionValue, Raw: strings.TrimSpace(raw)}
}

func StringList(items []string) Value {
	list := make([]Value, len(items))
	for i, item := range items {
		list[i] = String(item)
	}
	return Value{Kind: ListValue, List: list}
}

// Text returns the value as a plain string: unquoted for strings, source text otherwise.
func (v Value) Text() string {
	switch v.Kind {
	case StringValue:
		return v.Str
	case ListValue:
		return v.serialize()
	default:
		return v.Raw
	}
}

func (v Value) serialize() string {
	switch v.Kind {
	case StringValue:
		return quote(v.Str)
	case ListValue:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.serialize()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.Raw
	}
}

type attribute struct {
	name  string
	value Value
}

// ClassAd is an ordered set of attributes.
type ClassAd struct {
	attributes []attribute
}

func New() *ClassAd {
	return &ClassAd{}
}

func (ad *ClassAd) index(name string) int {
	for i, a := range ad.attributes {
		if strings.EqualFold(a.name, name) {
			return i
		}
	}
	return -1
}

func (ad *ClassAd) Has(name string) bool {
	return ad.index(name) >= 0
}

func (ad *ClassAd) Get(name string) (Value, bool) {
	if i := ad.index(name); i >= 0 {
		return ad.attributes[i].value, true
	}
	return Value{}, false
}

// Lookup returns the attribute as a plain string; see Value.Text.
func (ad *ClassAd) Lookup(name string) (string, bool) {
	v, ok := ad.Get(name)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// LookupDefault is Lookup falling back to def when the attribute is absent or blank.
func (ad *ClassAd) LookupDefault(name string, def string) string {
	if s, ok := ad.Lookup(name); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

// GetList extracts a list attribute. A scalar value is returned as a single element list and
// a missing attribute as an empty list.
func (ad *ClassAd) GetList(name string) []string {
	v, ok := ad.Get(name)
	if !ok {
		return []string{}
	}
	if v.Kind != ListValue {
		if s := v.Text(); strings.TrimSpace(s) != "" {
			return []string{s}
		}
		return []string{}
	}
	result := make([]string, 0, len(v.List))
	for _, item := range v.List {
		result = append(result, item.Text())
	}
	return result
}

// GetInt returns the attribute as an integer. Quoted numbers are accepted.
func (ad *ClassAd) GetInt(name string) (int64, bool, error) {
	s, ok := ad.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// Accept floats such as 3600.0, as written by some submission tools.
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil {
			return 0, true, errors.Errorf("attribute %s: %q is not a number", name, s)
		}
		i = int64(f)
	}
	return i, true, nil
}

// Set replaces or appends an attribute, keeping the position of an existing one.
func (ad *ClassAd) Set(name string, value Value) {
	if i := ad.index(name); i >= 0 {
		ad.attributes[i].value = value
		return
	}
	ad.attributes = append(ad.attributes, attribute{name: name, value: value})
}

func (ad *ClassAd) SetString(name string, value string) {
	ad.Set(name, String(value))
}

func (ad *ClassAd) SetInt(name string, value int64) {
	ad.Set(name, Expression(strconv.FormatInt(value, 10)))
}

func (ad *ClassAd) SetList(name string, values []string) {
	ad.Set(name, StringList(values))
}

func (ad *ClassAd) Delete(name string) {
	if i := ad.index(name); i >= 0 {
		ad.attributes = append(ad.attributes[:i], ad.attributes[i+1:]...)
	}
}

// Names returns the attribute names in their original order and spelling.
func (ad *ClassAd) Names() []string {
	names := make([]string, len(ad.attributes))
	for i, a := range ad.attributes {
		names[i] = a.name
	}
	return names
}

// String serialises the ad, one attribute per line.
func (ad *ClassAd) String() string {
	var sb strings.Builder
	sb.WriteString("[\n")
	for _, a := range ad.attributes {
		sb.WriteString("    ")
		sb.WriteString(a.name)
		sb.WriteString(" = ")
		sb.WriteString(a.value.serialize())
		sb.WriteString(";\n")
	}
	sb.WriteString("]")
	return sb.String()
}

// NormalizeBrackets trims surrounding whitespace and makes sure the text is enclosed in exactly
// one outer pair of square brackets.
func NormalizeBrackets(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text
	}
	return "[" + text + "]"
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
