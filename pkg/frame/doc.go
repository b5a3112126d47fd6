// Package frame defines the domain data types shared across the reshaping
// pipeline: typed fields and schemas, records with explicit missing values,
// immutable datasets, and the declarative specs (rules, pivot, standardize)
// that configure each stage.
//
// The Golden Rule: pkg/frame imports ONLY the standard library. Pipeline
// stages, storage, and CLI layers depend on frame, never the other way
// around.
package frame
