// Package textutil compares release titles and cleans names for use on disk.
//
// Titles are reduced to term-frequency fingerprints: text is folded to
// lowercase ASCII where possible, split on anything that is not a letter or
// digit, and stripped of leading articles and connectives. CosineSimilarity
// of two fingerprints is 1 for the same words in any order.
package textutil
