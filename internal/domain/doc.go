// Package domain models per-plot band and climate-variable time series sampled
// from remote-sensing image collections.
//
// # Data Sources
//
// Two collections are supported through dataset profiles (see [LookupDataset]):
//
//	sentinel2     COPERNICUS/S2_SR, Sentinel-2 Level-2A surface reflectance.
//	              One scene per granule; several granules can share a day.
//	terraclimate  IDAHO_EPSCOR/TERRACLIMATE, monthly gridded climate.
//
// # Scene Identifiers
//
// Scene ids start with the acquisition date:
//
//	"20190105T140051_20190105T140051_T20MQE"  →  date key "20190105" (8 chars)
//	"201901"                                   →  date key "201901"   (6 chars)
//
// The date key length is a property of the dataset profile. Same-day merging
// always groups by the first 8 characters, so monthly ids merge onto themselves.
//
// # Zonal Means
//
// A pixel is a cell, not a point. Every cell whose footprint overlaps a region
// contributes, weighted by the fraction of the cell inside the region, so a
// 1/24 degree TerraClimate cell that contains a whole 100 m plot box yields
// that cell's value. Cell sizes come from the raster geotransform or the
// dataset profile ([Dataset.CellSize]).
//
// # Masking
//
// Sentinel-2 pixels are valid only when the cloud probability (MSK_CLDPRB) and
// snow probability (MSK_SNWPRB) are both below 5 percent and the scene
// classification (SCL) is neither cloud shadow (3) nor cirrus (10).
// TerraClimate is not masked.
//
// # Scale Factors
//
// TerraClimate stores integers; each variable has a multiplicative scale factor
// (e.g. tmmx 0.1 → °C, vap 0.001 → kPa) applied to every pixel before averaging.
//
// # Missing Values
//
// A region that a scene does not cover, or whose pixels are all masked, gets the
// [Sentinel] value -9999. Sentinels are dropped from tall tables and excluded
// from the same-day max. A day where every candidate is a sentinel is written
// as an empty cell in wide tables.
//
// # Region IDs
//
// Regions are named "polygon_<n>" where n is the zero-based position of the
// point in the location list. Tables are sorted on this string, so
// "polygon_10" sorts before "polygon_2".
package domain
