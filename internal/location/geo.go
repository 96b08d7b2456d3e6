package location

import (
	"math"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

const earthRadiusM = 6371000

// haversineDistance 两点间大圆距离（米）
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := lat1*math.Pi/180, lat2*math.Pi/180
	dPhi, dLambda := (lat2-lat1)*math.Pi/180, (lon2-lon1)*math.Pi/180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Distance 合成距离 sqrt(水平距离² + 高度差²)，缺失高度按 0 计
// 两个位置都必须是完整位置
func Distance(from, to models.Position) float64 {
	horizontal := haversineDistance(*from.Lat, *from.Lng, *to.Lat, *to.Lng)
	dAlt := to.Altitude() - from.Altitude()
	return math.Sqrt(horizontal*horizontal + dAlt*dAlt)
}
