package models

// DataPoint 时间序列数据点，按 Timestamp 全序
// Timestamp 为总线时钟单位（非标准 epoch），Value 为数字、字符串或其它 JSON 叶子值
type DataPoint struct {
	Timestamp float64
	Value     any
}

// Pair 投影为 [timestamp, value]，用于 charts/data
func (p DataPoint) Pair() [2]any {
	return [2]any{p.Timestamp, p.Value}
}

// Numeric 返回数据点的数值，非数值返回 false
func (p DataPoint) Numeric() (float64, bool) {
	return ToFloat(p.Value)
}

// LatestValue raw/data 中每个字段的最新值
type LatestValue struct {
	Timestamp float64 `json:"timestamp"`
	Value     any     `json:"value"`
}

// Record 解码后的一条总线消息
type Record struct {
	Origin    string
	Timestamp float64
	// Fields 扁平化后的非空字段（点分路径 -> 值）
	Fields map[string]any
	// Location 本条消息携带的位置分量（部分更新）
	Location    Position
	HasLocation bool
}

// ToFloat 将 JSON 数值转换为 float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
