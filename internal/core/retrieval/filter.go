package retrieval

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Filter はメタデータのフィールドごとの許容値集合
// フィールド間は AND、同一フィールド内の値は OR で評価する
// nil または空の Filter は無条件を意味する
type Filter map[string][]string

// Matches はメタデータが全フィールドの条件を満たすかを返す
func (f Filter) Matches(meta map[string]string) bool {
	for field, allowed := range f {
		value, ok := meta[field]
		if !ok || !slices.Contains(allowed, value) {
			return false
		}
	}
	return true
}

// AdmitsNothing は許容値が空のフィールドを含むかを返す
// その場合どのエントリも条件を満たさない
func (f Filter) AdmitsNothing() bool {
	for _, allowed := range f {
		if len(allowed) == 0 {
			return true
		}
	}
	return false
}

// Fields はフィールド名を辞書順で返す
func (f Filter) Fields() []string {
	return slices.Sorted(maps.Keys(f))
}

// Clone はFilterの複製を返す
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for field, allowed := range f {
		out[field] = slices.Clone(allowed)
	}
	return out
}

// ParseFilter は "field=v1,v2" 形式の指定を Filter に変換する
// 同じフィールドを複数回指定した場合は値を結合する
func ParseFilter(exprs []string) (Filter, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	filter := make(Filter, len(exprs))
	for _, expr := range exprs {
		field, rawValues, ok := strings.Cut(expr, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q: expected field=value[,value...]", expr)
		}

		var values []string
		for _, v := range strings.Split(rawValues, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("invalid filter %q: no values for field %s", expr, field)
		}

		for _, v := range values {
			if !slices.Contains(filter[field], v) {
				filter[field] = append(filter[field], v)
			}
		}
	}
	return filter, nil
}
