// Package creativestore implements a versioned object store for advertising
// creatives. Each logical object is an advertisement instance composed of typed
// elements (texts, images, links, colors) described by a template, persisted in
// an S3-compatible backend with native versioning enabled.
//
// The package provides:
//
//   - a read path that resolves latest versions and reconstructs version
//     history from the backend's version chain,
//   - a write path that validates objects against their template's per-language
//     element constraints and serializes writers per object id through a
//     distributed lock,
//   - a time-bounded multipart upload session protocol that stages binary
//     content behind two validation passes before it becomes addressable.
//
// Storage backends live under storage/, lock managers under lock/, and the
// image preview engine under imaging/.
package creativestore
