// Package file provides the file reader.
//
// Each Read returns up to Config.ReadSize bytes (16 KiB by default) in a
// freshly allocated chunk, so chunks can be shared with every writer without
// copying. Reaching the end of the file ends the reader, which then drains
// and stops its writers.
package file
