package world

import (
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

type Spawn struct {
	Position mgl64.Vec3
	Yaw      float32
	Pitch    float32
}

func NewSpawn(x, y, z float64, yaw, pitch float32) Spawn {
	return Spawn{Position: mgl64.Vec3{x, y, z}, Yaw: yaw, Pitch: pitch}
}

// String encodes the spawn as "x;y;z;yaw;pitch".
func (s Spawn) String() string {
	parts := []string{
		strconv.FormatFloat(s.Position.X(), 'f', -1, 64),
		strconv.FormatFloat(s.Position.Y(), 'f', -1, 64),
		strconv.FormatFloat(s.Position.Z(), 'f', -1, 64),
		strconv.FormatFloat(float64(s.Yaw), 'f', -1, 32),
		strconv.FormatFloat(float64(s.Pitch), 'f', -1, 32),
	}
	return strings.Join(parts, ";")
}

func ParseSpawn(s string) (Spawn, bool) {
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != 5 {
		return Spawn{}, false
	}

	var coords [3]float64
	for i := range coords {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return Spawn{}, false
		}
		coords[i] = v
	}
	yaw, err := strconv.ParseFloat(parts[3], 32)
	if err != nil {
		return Spawn{}, false
	}
	pitch, err := strconv.ParseFloat(parts[4], 32)
	if err != nil {
		return Spawn{}, false
	}
	return NewSpawn(coords[0], coords[1], coords[2], float32(yaw), float32(pitch)), true
}
