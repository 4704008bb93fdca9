// Package redact hides secret values before they are printed.
//
// [Censor] keeps a few characters at both ends of a matched value so users
// can recognize it, and replaces the rest with '*'. [Content] applies the
// same treatment to every occurrence of the given values inside a document.
package redact
