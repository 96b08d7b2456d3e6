package timeseries

import (
	"sort"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// SortedInsert 二分定位后插入，保持按时间戳有序
// 时间戳相同时插入到已有数据点之后（upper bound），O(log n) 定位、O(n) 插入
func SortedInsert(series []models.DataPoint, point models.DataPoint) []models.DataPoint {
	n := len(series)
	if n == 0 || point.Timestamp >= series[n-1].Timestamp {
		return append(series, point)
	}

	idx := sort.Search(n, func(i int) bool {
		return series[i].Timestamp > point.Timestamp
	})

	series = append(series, models.DataPoint{})
	copy(series[idx+1:], series[idx:n])
	series[idx] = point
	return series
}

// WindowFrom 返回时间戳严格大于 cutoff 的最长后缀，O(log n)
// 返回值与 series 共享底层数组
func WindowFrom(series []models.DataPoint, cutoff float64) []models.DataPoint {
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp > cutoff
	})
	return series[idx:]
}
