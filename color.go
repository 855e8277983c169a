package mandel

import "image/color"

// BytesPerPixel is the size of one RGBA pixel in frame and tile buffers.
const BytesPerPixel = 4

// Color maps an iteration count onto the hue wheel
// red → yellow → green → cyan → blue → magenta → red.
// iteration == maxIteration (inside the set) is pure red.
func Color(iteration, maxIteration int) color.RGBA {
	v := 6 * float64(iteration) / float64(maxIteration)

	var r, g, b float64
	switch {
	case v < 1:
		r, g, b = 255, v*255, 0
	case v < 2:
		r, g, b = (2-v)*255, 255, 0
	case v < 3:
		r, g, b = 0, 255, (v-2)*255
	case v < 4:
		r, g, b = 0, (4-v)*255, 255
	case v < 5:
		r, g, b = (v-4)*255, 0, 255
	default:
		r, g, b = 255, 0, (6-v)*255
	}
	return color.RGBA{uint8(r), uint8(g), uint8(b), 255}
}

// PutColor writes the color for iteration into dst[0:4] as R, G, B, A.
func PutColor(dst []byte, iteration, maxIteration int) {
	c := Color(iteration, maxIteration)
	dst[0] = c.R
	dst[1] = c.G
	dst[2] = c.B
	dst[3] = c.A
}
