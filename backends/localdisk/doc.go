// Package localdisk stores objects as files in a single directory.
//
// Object ids are file names, so ID and Name are always equal. Writes go to
// a hidden temp file in the same directory and are renamed into place, so
// readers see either the old or the new content. The directory is opened
// with os.Root; ids containing separators, "..", or absolute paths are
// rejected with storage.ErrInvalidID before any file operation.
package localdisk
