// Package stage defines the handler contract, the immutable stage registry,
// and the failure descriptors the workflow engine interprets.
package stage
