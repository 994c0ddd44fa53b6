// Package types defines the entity kind descriptors, records, link rows,
// backend interfaces, and standard error values for the possum store.
//
// A Kind describes one application-defined entity category and the ordered
// fields of its table. Records of any kind can be related to records of any
// other kind through the polymorphic link graph; links reference endpoints
// by (kind id, local id) only.
package types
