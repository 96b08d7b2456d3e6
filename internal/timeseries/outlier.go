package timeseries

import (
	"math"
	"sort"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// minOutlierSamples 历史数值少于该数量时不做判断
const minOutlierSamples = 3

// OutlierFilter 基于滑动窗口中位数的离群值过滤
//
// 新值与最近 Window 个数值的中位数偏差超过 max(Tolerance*MAD, MinDeviation) 时拒绝。
// 连续拒绝达到 Window/2 次后视为数值真实跳变，重新接受。
// Tolerance <= 0 时关闭。
type OutlierFilter struct {
	Window       int
	Tolerance    float64
	MinDeviation float64
}

// Enabled 是否启用
func (f OutlierFilter) Enabled() bool {
	return f.Tolerance > 0 && f.Window > 0
}

// Accept 判断 value 是否接受
// history 为该序列已有数据点（按时间有序），rejected 为当前连续拒绝次数
func (f OutlierFilter) Accept(history []models.DataPoint, value any, rejected int) bool {
	if !f.Enabled() {
		return true
	}
	v, ok := models.ToFloat(value)
	if !ok {
		return true
	}
	if rejected >= releaseAfter(f.Window) {
		return true
	}

	samples := make([]float64, 0, f.Window)
	for i := len(history) - 1; i >= 0 && len(samples) < f.Window; i-- {
		if x, ok := history[i].Numeric(); ok {
			samples = append(samples, x)
		}
	}
	if len(samples) < minOutlierSamples {
		return true
	}

	m := median(samples)
	deviations := make([]float64, len(samples))
	for i, x := range samples {
		deviations[i] = math.Abs(x - m)
	}
	mad := median(deviations)

	threshold := math.Max(f.Tolerance*mad, f.MinDeviation)
	return math.Abs(v-m) <= threshold
}

func releaseAfter(window int) int {
	if window < 2 {
		return 1
	}
	return window / 2
}

// median 会对 values 原地排序
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
