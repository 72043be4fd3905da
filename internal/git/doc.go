// Package git reports whether a plaintext file written by cloudvault
// could end up committed to a git repository.
package git
