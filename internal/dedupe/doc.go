// Package dedupe suppresses repeated submissions of the same operator
// action within a short window, such as a double-clicked rollout run.
package dedupe
