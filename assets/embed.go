package assets

import _ "embed"

// SolarSystem is the default scene manifest (solar.system.yaml).
//
//go:embed solar.system.yaml
var SolarSystem []byte
