// Package textdiff compares a stored object with a local file.
package textdiff

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text content
)

// IsText reports whether data looks like text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 in the sample → binary
//  3. >10% non-printable control chars → binary
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	// A multi-byte rune cut by the sample boundary is not an error
	for i := 0; i < utf8.UTFMax && !utf8.Valid(sample) && len(sample) < len(data); i++ {
		sample = data[:len(sample)+1]
	}
	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		// tab, newline and carriage return are fine
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}
	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// Equal reports whether both contents hash to the same SHA-256 digest
func Equal(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return ha == hb
}

func lineDiffs(from, to []byte) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(from), string(to))
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// Unified renders the line changes turning stored into local, with
// ---/+++ headers naming both sides. Identical inputs produce "".
func Unified(storedName, localName string, stored, local []byte) string {
	if Equal(stored, local) {
		return ""
	}
	if !IsText(stored) || !IsText(local) {
		return fmt.Sprintf("Binary object %s differs from %s\n", storedName, localName)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n", storedName)
	fmt.Fprintf(&out, "+++ %s\n", localName)
	for _, d := range lineDiffs(stored, local) {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}
	return out.String()
}

// splitLines keeps line terminators and adds one to an unterminated tail
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

// Markers merges local and stored into one document. Common lines appear
// once and each differing region is wrapped in git-style conflict markers.
func Markers(local, stored []byte) []byte {
	return buildConflict(lineDiffs(local, stored))
}

func buildConflict(diffs []diffmatchpatch.Diff) []byte {
	var buf bytes.Buffer

	i := 0
	for i < len(diffs) {
		d := diffs[i]

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			buf.WriteString(d.Text)
			i++

		case diffmatchpatch.DiffDelete, diffmatchpatch.DiffInsert:
			buf.WriteString("<<<<<<< local\n")
			for i < len(diffs) && diffs[i].Type == diffmatchpatch.DiffDelete {
				writeTerminated(&buf, diffs[i].Text)
				i++
			}
			buf.WriteString("=======\n")
			for i < len(diffs) && diffs[i].Type == diffmatchpatch.DiffInsert {
				writeTerminated(&buf, diffs[i].Text)
				i++
			}
			buf.WriteString(">>>>>>> stored\n")
		}
	}

	return buf.Bytes()
}

func writeTerminated(buf *bytes.Buffer, text string) {
	buf.WriteString(text)
	if len(text) > 0 && text[len(text)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// HasMarkers reports whether data still contains unresolved conflict markers
func HasMarkers(data []byte) bool {
	return bytes.Contains(data, []byte("<<<<<<<")) ||
		bytes.Contains(data, []byte("=======")) ||
		bytes.Contains(data, []byte(">>>>>>>"))
}
