// Package language normalizes the language tags found in container stream
// metadata to ISO 639-2 codes.
package language
