// Package storage manages the beatmapset output directory.
//
// The Manager type keeps an in-memory set of beatmapset ids considered
// already retrieved. It is seeded at startup from the filename stems of
// .osz files in the output directory, grows as downloads are claimed, and
// never shrinks during a run. TryMark claims an id atomically so that
// concurrent tasks referencing the same beatmapset dispatch exactly one
// download between them.
//
// Archives are written atomically via a temporary file and rename.
package storage
