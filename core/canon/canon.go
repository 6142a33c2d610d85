// Package canon is the canonical byte encoder every sealed object hashes
// through. Values are marshaled to JSON and canonicalized per RFC 8785
// (JCS): UTF-8, object keys sorted bytewise, compact separators. The value
// grammar is restricted to strings, booleans, integers, null, sequences,
// and string-keyed mappings; floating-point and non-finite numbers are
// rejected rather than approximately encoded.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gowebpki/jcs"
)

// ErrUnsupportedType reports a value outside the canonical grammar.
var ErrUnsupportedType = errors.New("unsupported type in canonical value")

// Encode returns the canonical byte form of value.
func Encode(value any) ([]byte, error) {
	if err := checkValue(reflect.ValueOf(value), "$"); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical value: %w", err)
	}
	return jcs.Transform(raw)
}

// Digest encodes value canonically and returns its sha256 hex digest.
func Digest(value any) (string, error) {
	encoded, err := Encode(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns the RFC 8785 canonical form of pre-marshaled JSON.
func Canonicalize(raw []byte) ([]byte, error) {
	return jcs.Transform(raw)
}

func checkValue(value reflect.Value, path string) error {
	if !value.IsValid() {
		return nil // encodes as null
	}
	switch value.Kind() {
	case reflect.Interface, reflect.Pointer:
		if value.IsNil() {
			return nil
		}
		return checkValue(value.Elem(), path)
	case reflect.Bool, reflect.String:
		if value.Type() == reflect.TypeOf(json.Number("")) {
			return checkNumber(json.Number(value.String()), path)
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		return fmt.Errorf("%w: floating-point value at %s", ErrUnsupportedType, path)
	case reflect.Slice, reflect.Array:
		if value.Kind() == reflect.Slice && value.Type().Elem().Kind() == reflect.Uint8 {
			return nil // []byte encodes as base64 string
		}
		for index := 0; index < value.Len(); index++ {
			if err := checkValue(value.Index(index), fmt.Sprintf("%s[%d]", path, index)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: non-string mapping key at %s", ErrUnsupportedType, path)
		}
		iterator := value.MapRange()
		for iterator.Next() {
			if err := checkValue(iterator.Value(), path+"."+iterator.Key().String()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		valueType := value.Type()
		for index := 0; index < valueType.NumField(); index++ {
			field := valueType.Field(index)
			if !field.IsExported() {
				continue
			}
			if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
				continue
			}
			if err := checkValue(value.Field(index), path+"."+field.Name); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s at %s", ErrUnsupportedType, value.Kind(), path)
	}
}

func checkNumber(number json.Number, path string) error {
	text := number.String()
	if strings.ContainsAny(text, ".eE") {
		return fmt.Errorf("%w: non-integer number %q at %s", ErrUnsupportedType, text, path)
	}
	return nil
}
