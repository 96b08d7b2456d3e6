// Package decoder 解析总线消息
//
// 消息格式:
//
//	{"header": {"origin": ..., "timestamp": {"high": int32, "low": int32, "unsigned": bool}}, "data": {...}}
//
// data 为任意嵌套对象，扁平化为点分路径字段；包含 "location" 且以
// longitude / latitude / height 结尾的字段同时作为位置分量。
package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// ErrDecode 消息无法解码（丢弃并记录日志，不向上传播）
var ErrDecode = errors.New("decode error")

// timestampDivisor 总线时间戳的换算单位
const timestampDivisor = 10000

// Component 位置分量
type Component int

const (
	ComponentNone Component = iota
	ComponentLat
	ComponentLng
	ComponentAlt
)

// Decode 解析一条原始消息
func Decode(payload []byte) (*models.Record, error) {
	var message map[string]any
	if err := json.Unmarshal(payload, &message); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrDecode, err)
	}

	header, ok := message["header"].(map[string]any)
	if !ok || len(header) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrDecode)
	}

	origin, ok := originString(header["origin"])
	if !ok {
		return nil, fmt.Errorf("%w: missing origin", ErrDecode)
	}

	rawData, present := message["data"]
	if !present || rawData == nil {
		return nil, fmt.Errorf("%w: missing data", ErrDecode)
	}
	data, ok := rawData.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: data is not an object", ErrDecode)
	}

	timestamp, err := parseTimestamp(header["timestamp"])
	if err != nil {
		return nil, err
	}

	record := &models.Record{
		Origin:    origin,
		Timestamp: timestamp,
		Fields:    make(map[string]any),
	}

	for key, value := range Flatten(data) {
		if value == nil {
			continue
		}
		record.Fields[key] = value

		component := ClassifyLocation(key)
		if component == ComponentNone {
			continue
		}
		f, ok := models.ToFloat(value)
		if !ok {
			continue
		}
		switch component {
		case ComponentLat:
			record.Location.Lat = &f
		case ComponentLng:
			record.Location.Lng = &f
		case ComponentAlt:
			record.Location.Alt = &f
		}
		record.HasLocation = true
	}

	return record, nil
}

// DecodeTimestamp 由高低 32 位还原 64 位整数并换算为总线时间单位
// unsigned=false 时按二进制补码解释（高位符号位置位即为负数）
func DecodeTimestamp(high, low int64, unsigned bool) float64 {
	bits := uint64(uint32(high))<<32 | uint64(uint32(low))
	if unsigned {
		return float64(bits) / timestampDivisor
	}
	return float64(int64(bits)) / timestampDivisor
}

// Flatten 将嵌套对象扁平化为点分路径，非对象叶子保留原值（包括 nil）
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", data)
	return out
}

func flattenInto(out map[string]any, prefix string, data map[string]any) {
	for key, value := range data {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenInto(out, path, nested)
			continue
		}
		out[path] = value
	}
}

// ClassifyLocation 判断字段是否为位置分量
func ClassifyLocation(key string) Component {
	if !strings.Contains(key, "location") {
		return ComponentNone
	}
	switch {
	case strings.HasSuffix(key, "longitude"):
		return ComponentLng
	case strings.HasSuffix(key, "latitude"):
		return ComponentLat
	case strings.HasSuffix(key, "height"):
		return ComponentAlt
	default:
		return ComponentNone
	}
}

func parseTimestamp(raw any) (float64, error) {
	ts, ok := raw.(map[string]any)
	if !ok || len(ts) == 0 {
		return 0, fmt.Errorf("%w: missing timestamp", ErrDecode)
	}

	high, ok := toInt64(ts["high"])
	if !ok {
		return 0, fmt.Errorf("%w: missing or invalid timestamp.high", ErrDecode)
	}
	low, ok := toInt64(ts["low"])
	if !ok {
		return 0, fmt.Errorf("%w: missing or invalid timestamp.low", ErrDecode)
	}
	unsigned, ok := ts["unsigned"].(bool)
	if !ok {
		return 0, fmt.Errorf("%w: missing or invalid timestamp.unsigned", ErrDecode)
	}

	return DecodeTimestamp(high, low, unsigned), nil
}

func toInt64(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || math.Trunc(f) != f || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func originString(v any) (string, bool) {
	switch o := v.(type) {
	case nil:
		return "", false
	case string:
		return o, true
	case float64:
		return strconv.FormatFloat(o, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(o), true
	default:
		return fmt.Sprint(o), true
	}
}
