// Package transform contains the file transformers the tasks are built from. Each transformer
// either wraps a library (esbuild, minify, the image encoders) or an external command; none of
// them keep state between calls.
package transform
