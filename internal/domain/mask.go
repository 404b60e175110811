package domain

import "slices"

// MaskPolicy decides per pixel whether a scene's values are usable, based on
// the auxiliary quality bands the policy names.
type MaskPolicy interface {
	// Kind identifies the policy to remote collaborators.
	Kind() string
	// AuxBands lists the bands Valid reads.
	AuxBands() []string
	// Valid reports whether a pixel with the given band values is unmasked.
	// A missing auxiliary band makes the pixel invalid.
	Valid(bands map[string]float64) bool
}

// NoMask accepts every pixel.
type NoMask struct{}

func (NoMask) Kind() string                  { return "none" }
func (NoMask) AuxBands() []string            { return nil }
func (NoMask) Valid(map[string]float64) bool { return true }

// CloudShadowMask rejects pixels whose cloud or snow probability reaches the
// configured threshold, or whose scene classification is in RejectClasses.
type CloudShadowMask struct {
	CloudBand     string  `json:"cloud_band"`
	SnowBand      string  `json:"snow_band"`
	ClassBand     string  `json:"class_band"`
	MaxCloudProb  float64 `json:"max_cloud_prob"`
	MaxSnowProb   float64 `json:"max_snow_prob"`
	RejectClasses []int   `json:"reject_classes"`
}

// Sentinel2Mask is the Level-2A cloud, snow, shadow and cirrus mask.
var Sentinel2Mask = CloudShadowMask{
	CloudBand:     "MSK_CLDPRB",
	SnowBand:      "MSK_SNWPRB",
	ClassBand:     "SCL",
	MaxCloudProb:  5,
	MaxSnowProb:   5,
	RejectClasses: []int{3, 10}, // cloud shadow, cirrus
}

func (m CloudShadowMask) Kind() string { return "cloud_shadow" }

func (m CloudShadowMask) AuxBands() []string {
	return []string{m.CloudBand, m.SnowBand, m.ClassBand}
}

func (m CloudShadowMask) Valid(bands map[string]float64) bool {
	cloud, ok := bands[m.CloudBand]
	if !ok || cloud >= m.MaxCloudProb {
		return false
	}
	snow, ok := bands[m.SnowBand]
	if !ok || snow >= m.MaxSnowProb {
		return false
	}
	class, ok := bands[m.ClassBand]
	if !ok {
		return false
	}
	return !slices.Contains(m.RejectClasses, int(class))
}
