package models

// OriginInfo charts/origins 与 maps/origins 的目录条目
type OriginInfo struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Keys        []KeyInfo `json:"keys,omitempty"`
}

// KeyInfo 字段及其显示名称
type KeyInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}
