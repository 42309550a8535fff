// Package services defines shared utilities consumed by the workflow stage
// handlers: the error taxonomy used to classify stage failures and the
// context helpers that thread job identity through logging.
package services
