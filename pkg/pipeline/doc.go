// Package pipeline implements the task composer used by assetpipe. Tasks are plain Go functions
// with declared output claims; they are combined into series and parallel groups which form the
// entry points selected on the command line.
package pipeline
