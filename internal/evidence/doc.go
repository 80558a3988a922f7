// Package evidence defines the records that flow through the site survey
// pipeline: per-detector Observations, fused SiteCandidates, source
// Documents, the serialized output Record, and the error taxonomy shared by
// detectors and the pipeline.
//
// Observations and SiteCandidates are immutable values. Constructors
// validate their fields and copy maps and slices; accessors return copies.
// A SiteCandidate never stores its combined confidence, location or
// verification methods: all three are derived from the supporting
// observations on every call.
package evidence
