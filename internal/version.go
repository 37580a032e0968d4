// Package internal holds build information shared by the
// bverify executables.
package internal

// Version is the current version of the bverify executables.
const Version = "0.1.0"
