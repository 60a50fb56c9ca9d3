package crud

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	"github.com/simp-lee/rbacflow/internal/pkg"
)

var validate = validator.New()

// sqliteTimeLayout is how the pure-Go SQLite driver renders DATETIME values
// when they come back untyped.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// filterValue converts one filter scalar to the field's storage type.
// Strings coming from a query string are parsed according to the kind.
func (f Field) filterValue(v any) (any, error) {
	switch f.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindEnum:
		if s, ok := v.(string); ok {
			if !slices.Contains(f.Enum, s) {
				return nil, fmt.Errorf("must be one of %s", strings.Join(f.Enum, ", "))
			}
			return s, nil
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("must be a boolean")
			}
			return parsed, nil
		}
	case KindInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("must be an integer")
			}
			return n, nil
		}
	case KindTime:
		if t, ok := toTime(v); ok {
			return t, nil
		}
		return nil, fmt.Errorf("must be an RFC 3339 timestamp")
	}
	return nil, fmt.Errorf("unsupported value %v for %s field", v, f.Kind)
}

// patchValue converts a decoded JSON value to the field's storage type.
func (f Field) patchValue(v any) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("must not be null")
		}
		return nil, nil
	}
	switch f.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("must be a string")
	case KindEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(f.Enum, s) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(f.Enum, ", "))
		}
		return s, nil
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("must be a boolean")
	case KindInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		return nil, fmt.Errorf("must be an integer")
	case KindTime:
		if t, ok := toTime(v); ok {
			return t, nil
		}
		return nil, fmt.Errorf("must be an RFC 3339 timestamp")
	case KindJSON:
		switch m := v.(type) {
		case datatypes.JSONMap:
			return m, nil
		case map[string]any:
			return datatypes.JSONMap(m), nil
		}
		return nil, fmt.Errorf("must be an object")
	}
	return nil, fmt.Errorf("unsupported kind %s", f.Kind)
}

// checkRules applies the field's validator tags to a converted patch value.
func (f Field) checkRules(v any) error {
	if f.Rules == "" || v == nil {
		return nil
	}
	err := validate.Var(v, f.Rules)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return errors.New(pkg.FieldErrorMessage(ve[0]))
	}
	return err
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, sqliteTimeLayout} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	case []byte:
		return toTime(string(t))
	}
	return time.Time{}, false
}

// normalize converts a raw driver value read from storage into the natural
// Go type of the field kind (bool columns come back as integers from some
// drivers, strings as byte slices).
func (f Field) normalize(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch f.Kind {
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	case KindInt:
		if n, ok := toInt64(v); ok {
			return n
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case KindTime:
		if t, ok := toTime(v); ok {
			return t
		}
	}
	return v
}

// label renders a filter option value for display.
func label(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// compareValues orders two normalized values of the same field ascending.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(label(a), label(b))
}
