package timeseries

import (
	"math"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// LTTB Largest-Triangle-Three-Buckets 降采样
//
// k >= len(data) 或 k <= 0 时原样返回；k 为 1 或 2 时只返回首尾两点。否则保留首尾两点，将中间的 n-2 个点
// 分为 k-2 个桶，每个桶中选取与上一个选中点、下一个桶质心构成三角形面积最大的点。
// 非数值的 value 按 0 参与面积计算。
func LTTB(data []models.DataPoint, k int) []models.DataPoint {
	n := len(data)
	if k >= n || k <= 0 {
		return data
	}
	if k <= 2 {
		return []models.DataPoint{data[0], data[n-1]}
	}

	bucketSize := float64(n-2) / float64(k-2)
	reduced := make([]models.DataPoint, 0, k)
	reduced = append(reduced, data[0])
	a := data[0]

	for i := 1; i <= k-2; i++ {
		rangeStart := int(math.Floor(float64(i-1)*bucketSize)) + 1
		rangeEnd := int(math.Floor(float64(i)*bucketSize)) + 1
		if rangeEnd > n-1 {
			rangeEnd = n - 1
		}
		if rangeEnd <= rangeStart {
			rangeEnd = rangeStart + 1
		}

		nextStart := int(math.Floor(float64(i)*bucketSize)) + 1
		nextEnd := int(math.Floor(float64(i+1)*bucketSize)) + 1
		if nextEnd > n {
			nextEnd = n
		}
		if nextStart >= nextEnd {
			nextStart, nextEnd = n-1, n
		}
		avgT, avgV := centroid(data[nextStart:nextEnd])

		aT, aV := a.Timestamp, value(a)
		maxArea := -1.0
		chosen := data[rangeStart]
		for _, p := range data[rangeStart:rangeEnd] {
			area := math.Abs((aT-avgT)*(value(p)-aV)-(aT-p.Timestamp)*(avgV-aV)) / 2
			if area > maxArea {
				maxArea = area
				chosen = p
			}
		}

		reduced = append(reduced, chosen)
		a = chosen
	}

	reduced = append(reduced, data[n-1])
	return reduced
}

func centroid(bucket []models.DataPoint) (float64, float64) {
	var sumT, sumV float64
	for _, p := range bucket {
		sumT += p.Timestamp
		sumV += value(p)
	}
	count := float64(len(bucket))
	return sumT / count, sumV / count
}

func value(p models.DataPoint) float64 {
	if f, ok := p.Numeric(); ok {
		return f
	}
	if b, ok := p.Value.(bool); ok && b {
		return 1
	}
	return 0
}
