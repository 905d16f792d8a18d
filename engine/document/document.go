// Package document implements the structured key/value bag carried in packet headers,
// query payloads and persisted configurations.
//
// A Document holds primitives, slices and nested documents. After a round trip through
// any MsgPacker nested documents come back as map[string]interface{} and numbers may change
// their concrete type, so values should always be read with the typed getters.
package document

import (
	"sort"

	"github.com/xiaonanln/typeconv"
)

// Document is a generic structured key/value bag
type Document map[string]interface{}

// New creates an empty document
func New() Document {
	return Document{}
}

// Of creates a document with one key
func Of(key string, val interface{}) Document {
	return Document{key: val}
}

// Append sets the key and returns the document for chaining
func (d Document) Append(key string, val interface{}) Document {
	d[key] = val
	return d
}

// Has checks if the key is set
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Get returns the raw value of the key
func (d Document) Get(key string) interface{} {
	return d[key]
}

// Remove removes the key
func (d Document) Remove(key string) Document {
	delete(d, key)
	return d
}

// Keys returns the sorted keys of the document
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	cp := make(Document, len(d))
	for k, v := range d {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case Document:
		return tv.Clone()
	case map[string]interface{}:
		return Document(tv).Clone()
	case []interface{}:
		cp := make([]interface{}, len(tv))
		for i, e := range tv {
			cp[i] = cloneValue(e)
		}
		return cp
	case []Document:
		cp := make([]Document, len(tv))
		for i, e := range tv {
			cp[i] = e.Clone()
		}
		return cp
	case []string:
		return append([]string(nil), tv...)
	case []byte:
		return append([]byte(nil), tv...)
	default:
		return v
	}
}

// GetString returns the string value of the key, or "" if it is missing or not a string
func (d Document) GetString(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// GetInt64 returns the integer value of the key, or 0 if it is missing
func (d Document) GetInt64(key string) int64 {
	v, ok := d[key]
	if !ok || v == nil {
		return 0
	}
	switch tv := v.(type) {
	case float64:
		return int64(tv)
	case float32:
		return int64(tv)
	case bool, string, []byte:
		return 0
	}
	return int64(typeconv.Int(v))
}

// GetInt returns the integer value of the key, or 0 if it is missing
func (d Document) GetInt(key string) int {
	return int(d.GetInt64(key))
}

// GetIntOr returns the integer value of the key, or def if the key is missing
func (d Document) GetIntOr(key string, def int) int {
	if !d.Has(key) {
		return def
	}
	return d.GetInt(key)
}

// GetFloat returns the float value of the key, or 0 if it is missing
func (d Document) GetFloat(key string) float64 {
	switch tv := d[key].(type) {
	case float64:
		return tv
	case float32:
		return float64(tv)
	case nil, bool, string, []byte:
		return 0
	default:
		return float64(typeconv.Int(tv))
	}
}

// GetBool returns the bool value of the key, or false if it is missing
func (d Document) GetBool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// GetBytes returns the binary value of the key
func (d Document) GetBytes(key string) []byte {
	switch v := d[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// GetDocument returns the nested document of the key, or nil if it is missing
func (d Document) GetDocument(key string) Document {
	return toDocument(d[key])
}

// GetStrings returns the string list of the key
func (d Document) GetStrings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []interface{}:
		res := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				res = append(res, s)
			}
		}
		return res
	default:
		return nil
	}
}

// GetDocuments returns the list of nested documents of the key
func (d Document) GetDocuments(key string) []Document {
	switch v := d[key].(type) {
	case []Document:
		return v
	case []map[string]interface{}:
		res := make([]Document, len(v))
		for i, e := range v {
			res[i] = Document(e)
		}
		return res
	case []interface{}:
		res := make([]Document, 0, len(v))
		for _, e := range v {
			if doc := toDocument(e); doc != nil {
				res = append(res, doc)
			}
		}
		return res
	default:
		return nil
	}
}

func toDocument(v interface{}) Document {
	switch tv := v.(type) {
	case Document:
		return tv
	case map[string]interface{}:
		return Document(tv)
	case map[interface{}]interface{}:
		doc := make(Document, len(tv))
		for k, v := range tv {
			if ks, ok := k.(string); ok {
				doc[ks] = v
			}
		}
		return doc
	default:
		return nil
	}
}

// Documents converts a list of encodable values to a list of documents
func Documents[T interface{ ToDocument() Document }](items []T) []Document {
	res := make([]Document, len(items))
	for i, item := range items {
		res[i] = item.ToDocument()
	}
	return res
}
