package normalizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

type evaluator func(ctx context.Context, data interface{}) (interface{}, error)

// lookup tries a list of JSON paths in order and keeps the first non-empty hit
type lookup []evaluator

func paths(exprs ...string) lookup {
	l := make(lookup, 0, len(exprs))
	for _, expr := range exprs {
		eval, err := jsonpath.New(expr)
		if err != nil {
			panic(fmt.Sprintf("normalizer: bad path %q: %v", expr, err))
		}
		l = append(l, evaluator(eval))
	}
	return l
}

func (l lookup) value(raw interface{}) (interface{}, bool) {
	for _, eval := range l {
		v, err := eval(context.Background(), raw)
		if err != nil || v == nil {
			continue
		}
		// wildcards yield a list; a single answer may come back wrapped too
		if list, ok := v.([]interface{}); ok {
			if len(list) == 0 || list[0] == nil {
				continue
			}
			if len(list) == 1 {
				v = list[0]
			}
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func (l lookup) str(raw interface{}) string {
	v, ok := l.value(raw)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []interface{}:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func (l lookup) float(raw interface{}) float64 {
	v, ok := l.value(raw)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	default:
		return 0
	}
}

func (l lookup) integer(raw interface{}) int {
	return int(l.float(raw))
}

func (l lookup) flag(raw interface{}) bool {
	v, ok := l.value(raw)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	default:
		return false
	}
}

// list collects every string a lookup yields, across all paths
func (l lookup) list(raw interface{}) []string {
	var out []string
	for _, eval := range l {
		v, err := eval(context.Background(), raw)
		if err != nil || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			for _, part := range strings.Split(t, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		}
	}
	return out
}
