package catalog

import "math/rand"

// Orientation maps a named aspect ratio to concrete dimensions. All
// dimensions are multiples of 64, which is what the horde workers
// require.
type Orientation struct {
	Name   string
	Width  int
	Height int
}

var orientations = []Orientation{
	{Name: "landscape-16x9", Width: 768, Height: 448},
	{Name: "landscape", Width: 768, Height: 512},
	{Name: "portrait", Width: 512, Height: 768},
	{Name: "phone-bg", Width: 448, Height: 960},
	{Name: "ultrawide", Width: 960, Height: 448},
	{Name: "square", Width: 512, Height: 512},
}

var orientationsByName = func() map[string]Orientation {
	m := make(map[string]Orientation, len(orientations))
	for _, o := range orientations {
		m[o.Name] = o
	}
	return m
}()

// Orientations returns the orientation catalog in stable order.
func Orientations() []Orientation {
	out := make([]Orientation, len(orientations))
	copy(out, orientations)
	return out
}

// LookupOrientation resolves a named orientation to its dimensions.
func LookupOrientation(name string) (Orientation, bool) {
	o, ok := orientationsByName[name]
	return o, ok
}

// RandomOrientation picks a concrete orientation uniformly.
func RandomOrientation(rng *rand.Rand) Orientation {
	return orientations[rng.Intn(len(orientations))]
}
