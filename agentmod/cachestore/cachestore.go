// Cache of event context text (title and description), keyed by event ID.
//
// The admission engine uses event context to judge whether promotional posts are on-topic.
// Callers may register context once per event rather than sending it with every post.
package cachestore

import (
	"context"
	"unicode/utf8"
)

// Longest context text kept, in bytes. Only the leading part of a description matters for
// relevance checks.
var MaxContextBytes = 8 << 10

// Truncates text to MaxContextBytes, without splitting a multi-byte character.
func clampContext(text string) string {
	if len(text) <= MaxContextBytes {
		return text
	}
	cut := MaxContextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

type ContextStore interface {
	// Returns an empty string (and no error) when nothing is cached for the event.
	GetContext(ctx context.Context, eventID string) (string, error)
	SetContext(ctx context.Context, eventID, text string) error
	PurgeContext(ctx context.Context, eventID string) error
}
