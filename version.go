package fhirvalidator

// FHIRVersion identifies a FHIR specification release.
type FHIRVersion string

const (
	// R4 is FHIR release 4.0.1, the version this validator targets.
	R4 FHIRVersion = "4.0.1"
)

// Version is the validator library version.
const Version = "1.2.0"

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}
