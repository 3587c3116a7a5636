// Package render turns inference results into HTML highlight markup and
// confidence bar charts.
//
// Both renderers are pure: they keep no state between calls and return the
// same output for the same input.
package render
