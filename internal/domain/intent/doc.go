// Package intent classifies incoming intents into orchestrator decisions.
//
// Classification is a pure read of the catalog snapshot plus a short
// cooldown cache that coalesces identical intents (same type and folded
// name) arriving within the cooldown window.
package intent
