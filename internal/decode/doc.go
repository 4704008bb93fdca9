// Package decode turns raw file or patch bytes into text.
//
// Bytes never fails: content whose charset cannot be determined with enough
// confidence, and binary content, decode to the empty string and a warning is
// logged. Valid UTF-8 is returned as is, minus a leading byte order mark.
package decode
