package storage

// Package storage is the durable record of posts, engagement events and
// operator accounts, backed by SQLite.
//
// It owns all persisted state; the publication engine keeps only transient
// timer handles and re-reads posts through this package at fire time.
//
// Status transitions are guarded at the SQL level: MarkPublished and
// ResetToDraft are conditional updates, and zero rows affected means another
// path already moved the post.
