package mandel

import "math"

// InCardioid reports whether (x, y) lies in the main cardioid, the largest
// connected interior region of the set.
func InCardioid(x, y float64) bool {
	p := float64((x-0.25)*(x-0.25)) + float64(y*y)
	q := math.Sqrt(p)
	return x <= q-float64(2*p)+0.25
}

// Escape returns the number of iterations of z ↦ z²+c, starting at z=0 with
// c=(x, y), before |z| reaches 2, capped at maxIteration. Points in the main
// cardioid return maxIteration without iterating.
func Escape(x, y float64, maxIteration int) int {
	if InCardioid(x, y) {
		return maxIteration
	}

	// The float64 conversions round every product, which keeps the compiler
	// from fusing multiply-adds; iteration counts must not depend on GOARCH.
	var zx, zy float64
	iteration := 0
	for float64(zx*zx)+float64(zy*zy) < 4 && iteration < maxIteration {
		zx, zy = float64(zx*zx)-float64(zy*zy)+x, float64(2*zx*zy)+y
		iteration++
	}
	return iteration
}
