// Package sanitize strips characters the catalog store cannot accept from text
// pulled out of HTML pages, PDFs and feeds.
//
// All functions are idempotent and never fail: the worst case is an empty string.
// Newlines, carriage returns and tabs survive; NUL, the remaining C0 and C1 control
// characters, DEL and invalid UTF-8 sequences are removed.
package sanitize
