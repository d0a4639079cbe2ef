package seriesbackend

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// encode converts a value to its series field form.
func encode(v value.Value) any {
	switch val := v.(type) {
	case nil, value.Null:
		return nil
	case value.String:
		return string(val)
	case value.Symbol:
		return string(val)
	case value.Bool:
		return bool(val)
	case value.Int:
		return int64(val)
	case value.Float:
		return float64(val)
	case value.Time:
		return time.Time(val)
	case value.List:
		return []string(val)
	default:
		return value.Encode(v)
	}
}

// decode converts a stored field back to a value of type t.
func decode(t value.Type, raw any) (value.Value, error) {
	switch val := raw.(type) {
	case nil:
		return value.Null{}, nil
	case string:
		return value.Parse(t, val)
	case int64:
		switch t {
		case value.TypeInt:
			return value.Int(val), nil
		case value.TypeFloat:
			return value.Float(val), nil
		case value.TypeTime:
			return value.NewTime(time.Unix(0, val)), nil
		case value.TypeString, value.TypeSymbol:
			return value.Parse(t, strconv.FormatInt(val, 10))
		}
	case float64:
		switch t {
		case value.TypeFloat:
			return value.Float(val), nil
		case value.TypeInt:
			if val == math.Trunc(val) {
				return value.Int(int64(val)), nil
			}
		case value.TypeString, value.TypeSymbol:
			return value.Parse(t, strconv.FormatFloat(val, 'g', -1, 64))
		}
	}
	return nil, fmt.Errorf("%w: stored %T is not %s", value.ErrTypeMismatch, raw, t)
}

// decodeList reads a JSON id list field. NULL is the empty list.
func decodeList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: stored %T is not a list", value.ErrTypeMismatch, raw)
	}
	v, err := value.Parse(value.TypeList, s)
	if err != nil {
		return nil, err
	}
	if list, ok := v.(value.List); ok {
		return list, nil
	}
	return nil, nil
}

// decodeFields rebuilds the declared attributes of class from a point.
func decodeFields(class *record.Class, fields map[string]any) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(class.Attributes))
	for _, attr := range class.Attributes {
		raw, ok := fields[attr.Name]
		if !ok {
			continue
		}
		v, err := decode(attr.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", class.Name, attr.Name, err)
		}
		out[attr.Name] = v
	}
	return out, nil
}
