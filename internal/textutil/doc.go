// Package textutil provides the text helpers shared by the cover stages:
// multi-value attribute encoding, whitespace cleanup, and accent folding for
// search terms.
package textutil
