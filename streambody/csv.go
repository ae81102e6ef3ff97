// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"bytes"
	"encoding"
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// QuoteStyle controls when CSV fields are quoted.
type QuoteStyle int

const (
	// QuoteNecessary quotes fields containing the delimiter, the quote
	// character or a line terminator.
	QuoteNecessary QuoteStyle = iota
	// QuoteAlways quotes every field.
	QuoteAlways
	// QuoteNonNumeric quotes every field that does not parse as a number.
	QuoteNonNumeric
	// QuoteNever never quotes, even when the output becomes ambiguous.
	QuoteNever
)

func (q QuoteStyle) String() string {
	switch q {
	case QuoteNecessary:
		return "necessary"
	case QuoteAlways:
		return "always"
	case QuoteNonNumeric:
		return "non_numeric"
	case QuoteNever:
		return "never"
	default:
		return fmt.Sprintf("QuoteStyle(%d)", int(q))
	}
}

// CSVMarshaler is implemented by items that produce their own CSV record.
type CSVMarshaler interface {
	MarshalCSV() ([]string, error)
}

// CSVHeaderer is implemented by items that name their CSV columns.
type CSVHeaderer interface {
	CSVHeader() []string
}

var (
	csvMarshalerType = reflect.TypeOf((*CSVMarshaler)(nil)).Elem()
	textMarshalType  = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	stringerType     = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// CSVFormat writes one record per item. Struct items are flattened using
// `csv:"name"` tags; see CSVMarshaler for custom records.
type CSVFormat[T any] struct {
	hasHeaders  bool
	delimiter   byte
	flexible    bool
	quoteStyle  QuoteStyle
	quote       byte
	doubleQuote bool
	escape      byte
	terminator  []byte
}

// NewCSV returns a CSV format with the given header mode and delimiter and
// defaults for everything else.
func NewCSV[T any](hasHeaders bool, delimiter byte) CSVFormat[T] {
	return CSVFormat[T]{
		hasHeaders:  hasHeaders,
		delimiter:   delimiter,
		quoteStyle:  QuoteNecessary,
		quote:       '"',
		doubleQuote: true,
		escape:      '\\',
		terminator:  []byte{'\n'},
	}
}

// DefaultCSV returns a comma separated format that writes a header row.
func DefaultCSV[T any]() CSVFormat[T] {
	return NewCSV[T](true, ',')
}

func (f CSVFormat[T]) WithHasHeaders(v bool) CSVFormat[T]       { f.hasHeaders = v; return f }
func (f CSVFormat[T]) WithDelimiter(v byte) CSVFormat[T]        { f.delimiter = v; return f }
func (f CSVFormat[T]) WithFlexible(v bool) CSVFormat[T]         { f.flexible = v; return f }
func (f CSVFormat[T]) WithQuoteStyle(v QuoteStyle) CSVFormat[T] { f.quoteStyle = v; return f }
func (f CSVFormat[T]) WithQuote(v byte) CSVFormat[T]            { f.quote = v; return f }
func (f CSVFormat[T]) WithDoubleQuote(v bool) CSVFormat[T]      { f.doubleQuote = v; return f }
func (f CSVFormat[T]) WithEscape(v byte) CSVFormat[T]           { f.escape = v; return f }
func (f CSVFormat[T]) WithTerminator(v byte) CSVFormat[T]       { f.terminator = []byte{v}; return f }
func (f CSVFormat[T]) WithCRLF() CSVFormat[T]                   { f.terminator = []byte("\r\n"); return f }

func (f CSVFormat[T]) Kind() FormatKind    { return FormatCSV }
func (f CSVFormat[T]) ContentType() string { return ContentTypeCSV }

func (f CSVFormat[T]) validate() error {
	switch {
	case f.delimiter == f.quote:
		return errors.Newf("csv delimiter and quote are both %q", f.delimiter)
	case f.delimiter == '\r' || f.delimiter == '\n':
		return errors.Newf("csv delimiter %q is a line break", f.delimiter)
	case f.quote == '\r' || f.quote == '\n':
		return errors.Newf("csv quote %q is a line break", f.quote)
	case len(f.terminator) == 0:
		return errors.New("csv terminator is empty")
	case len(f.terminator) == 1 && (f.terminator[0] == f.delimiter || f.terminator[0] == f.quote):
		return errors.Newf("csv terminator %q clashes with delimiter or quote", f.terminator[0])
	}
	return nil
}

func (f CSVFormat[T]) Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error] {
	width := -1
	return frame(src, framing[T]{
		kind: FormatCSV,
		begin: func() ([]byte, error) {
			width = -1
			return nil, f.validate()
		},
		item: func(pos int, v T) ([]byte, error) {
			record, err := csvRecord(v)
			if err != nil {
				return nil, err
			}
			if !f.flexible {
				if width < 0 {
					width = len(record)
				} else if len(record) != width {
					return nil, errors.Newf("record has %d fields, expected %d", len(record), width)
				}
			}

			buf := bytebufferpool.Get()
			defer bytebufferpool.Put(buf)
			if pos == 0 && f.hasHeaders {
				if header := csvHeader(v); header != nil {
					f.writeRecord(buf, header)
				}
			}
			f.writeRecord(buf, record)
			return bytes.Clone(buf.B), nil
		},
	})
}

func (f CSVFormat[T]) writeRecord(buf *bytebufferpool.ByteBuffer, record []string) {
	for i, field := range record {
		if i > 0 {
			_ = buf.WriteByte(f.delimiter)
		}
		if f.shouldQuote(field, len(record)) {
			f.writeQuoted(buf, field)
		} else {
			_, _ = buf.WriteString(field)
		}
	}
	_, _ = buf.Write(f.terminator)
}

func (f CSVFormat[T]) shouldQuote(field string, width int) bool {
	switch f.quoteStyle {
	case QuoteAlways:
		return true
	case QuoteNever:
		return false
	case QuoteNonNumeric:
		if _, err := strconv.ParseFloat(field, 64); err != nil {
			return true
		}
		return false
	default:
		// A record made of one empty field would otherwise read back as a blank line.
		if field == "" {
			return width == 1
		}
		for i := 0; i < len(field); i++ {
			switch c := field[i]; c {
			case f.delimiter, f.quote, '\r', '\n':
				return true
			default:
				if len(f.terminator) == 1 && c == f.terminator[0] {
					return true
				}
				if !f.doubleQuote && c == f.escape {
					return true
				}
			}
		}
		return false
	}
}

func (f CSVFormat[T]) writeQuoted(buf *bytebufferpool.ByteBuffer, field string) {
	_ = buf.WriteByte(f.quote)
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c == f.quote {
			if f.doubleQuote {
				_ = buf.WriteByte(f.quote)
			} else {
				_ = buf.WriteByte(f.escape)
			}
		}
		_ = buf.WriteByte(c)
	}
	_ = buf.WriteByte(f.quote)
}

// csvRecord extracts the fields of one item.
func csvRecord(v any) ([]string, error) {
	switch r := v.(type) {
	case CSVMarshaler:
		return r.MarshalCSV()
	case []string:
		return r, nil
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, errors.New("nil record")
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errors.New("nil record")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		s, err := csvField(rv)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}

	fields, err := csvFieldsOf(rv.Type())
	if err != nil {
		return nil, err
	}
	record := make([]string, len(fields))
	for i, fi := range fields {
		s, err := csvField(rv.FieldByIndex(fi.index))
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", fi.name)
		}
		record[i] = s
	}
	return record, nil
}

// csvHeader returns the column names for v, or nil when v has none.
func csvHeader(v any) []string {
	if h, ok := v.(CSVHeaderer); ok {
		return h.CSVHeader()
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Implements(csvMarshalerType) {
		return nil
	}
	fields, err := csvFieldsOf(t)
	if err != nil {
		return nil
	}
	header := make([]string, len(fields))
	for i, fi := range fields {
		header[i] = fi.name
	}
	return header
}

// csvFieldInfo describes one column of a struct record.
type csvFieldInfo struct {
	name  string
	index []int
}

var csvFieldCache sync.Map // reflect.Type -> []csvFieldInfo

// csvFieldsOf lists the exported fields of t in declaration order, honouring
// `csv:"name"` tags. A tag of "-" skips the field. Embedded structs without a
// tag are flattened.
func csvFieldsOf(t reflect.Type) ([]csvFieldInfo, error) {
	if cached, ok := csvFieldCache.Load(t); ok {
		return cached.([]csvFieldInfo), nil
	}
	var fields []csvFieldInfo
	var walk func(t reflect.Type, prefix []int) error
	walk = func(t reflect.Type, prefix []int) error {
		for i := range t.NumField() {
			f := t.Field(i)
			tag := f.Tag.Get("csv")
			if tag == "-" {
				continue
			}
			index := append(append([]int(nil), prefix...), i)
			if f.Anonymous && tag == "" {
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					return errors.Newf("embedded pointer field %s is not supported", f.Name)
				}
				if ft.Kind() == reflect.Struct {
					if err := walk(ft, index); err != nil {
						return err
					}
					continue
				}
			}
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(tag, ",")
			if name == "" {
				name = f.Name
			}
			fields = append(fields, csvFieldInfo{name: name, index: index})
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}
	csvFieldCache.Store(t, fields)
	return fields, nil
}

// csvField renders a single scalar value.
func csvField(v reflect.Value) (string, error) {
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", nil
		}
		if v.Type().Implements(textMarshalType) || v.Type().Implements(stringerType) {
			return csvFieldMarshal(v)
		}
		return csvField(v.Elem())
	}
	if v.Type().Implements(textMarshalType) || v.Type().Implements(stringerType) {
		return csvFieldMarshal(v)
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(textMarshalType) {
		return csvFieldMarshal(v.Addr())
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes()), nil
		}
	}
	return "", errors.Newf("unsupported csv field type %v", v.Type())
}

func csvFieldMarshal(v reflect.Value) (string, error) {
	switch m := v.Interface().(type) {
	case encoding.TextMarshaler:
		b, err := m.MarshalText()
		if err != nil {
			return "", err
		}
		return string(b), nil
	case fmt.Stringer:
		return m.String(), nil
	}
	return "", errors.Newf("unsupported csv field type %v", v.Type())
}

// CSV streams items as comma separated records without a header row.
func CSV[T any](src iter.Seq[T], opts ...Option) *Body {
	return New(NewCSV[T](false, ','), Values(src), opts...)
}

// CSVWithErrors streams items as comma separated records without a header
// row, stopping at the first source error.
func CSVWithErrors[T any](src iter.Seq2[T, error], opts ...Option) *Body {
	return New(NewCSV[T](false, ','), src, opts...)
}
