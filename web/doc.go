// Package web serves the classification front end: a page to pick a model,
// paste patent text and view the predicted category with its confidence
// chart and attention highlighting, plus a JSON endpoint for the same cycle.
//
// Predictions are serialized. Only one inference runs at a time, and the
// garbage collector is run after each one so repeated predictions in one
// process keep a bounded peak memory.
package web
