package models

// Position 位置，分量可能缺失（部分更新）
type Position struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
	Alt *float64 `json:"alt,omitempty"`
}

// Complete 经纬度均已知
func (p Position) Complete() bool {
	return p.Lat != nil && p.Lng != nil
}

// Empty 没有任何分量
func (p Position) Empty() bool {
	return p.Lat == nil && p.Lng == nil && p.Alt == nil
}

// Merge 以写时复制方式合并部分更新，返回新的 Position，已有分量在 update 缺失时保留
func (p Position) Merge(update Position) Position {
	merged := p
	if update.Lat != nil {
		v := *update.Lat
		merged.Lat = &v
	}
	if update.Lng != nil {
		v := *update.Lng
		merged.Lng = &v
	}
	if update.Alt != nil {
		v := *update.Alt
		merged.Alt = &v
	}
	return merged
}

// Altitude 高度，缺失时为 0
func (p Position) Altitude() float64 {
	if p.Alt == nil {
		return 0
	}
	return *p.Alt
}

// MapLocation maps/data 中的位置，附带 origin 显示名称
type MapLocation struct {
	Position
	DisplayName string `json:"displayName"`
}

// NewPosition 便捷构造函数
func NewPosition(lat, lng float64) Position {
	return Position{Lat: &lat, Lng: &lng}
}

// NewPosition3D 带高度的便捷构造函数
func NewPosition3D(lat, lng, alt float64) Position {
	return Position{Lat: &lat, Lng: &lng, Alt: &alt}
}
