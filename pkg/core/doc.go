// Package core defines the record schema shared by snapshot producers and
// the defsdb loader.
//
// This package contains:
//   - Snapshot records (ModuleRecord, ConstantRecord, MethodRecord, Ref)
//   - Wire helpers for ids, source locations and parameter tuples
//   - JSON and YAML snapshot decoding
//
// Snapshot objects decode into go-ordered-map maps, so loading follows
// document order.
//
// The Golden Rule: pkg/core imports ONLY stdlib, yaml.v3 and go-ordered-map.
// It carries no behavior beyond decoding; linking records into a graph is
// the loader's job.
package core
