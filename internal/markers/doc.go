// Package markers owns pose aggregation for fiducial markers.
//
// Responsibilities: per-marker rolling observation buffers, quaternion and
// position averaging, inlier selection by standard-deviation thresholding,
// and the stationary/moving completion strategies that decide when a
// buffered window is trustworthy enough to emit a finalized pose.
// Key types: Marker, Aggregator, CompletionStrategy, DetectionConfig.
//
// Dependency rule: markers may depend on internal/config, but never on the
// detector, ingest, db or api packages. No I/O happens here; callers feed
// already-decoded (id, position, rotation) observations once per cycle.
package markers
