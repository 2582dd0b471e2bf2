package model

import "time"

// Session represents a scheduled showing of a movie in a room.  It is
// the unit seats are sold against: every seat of the room is copied
// into a SessionSeat when the session is created.  Not to be confused
// with an authentication session.
//
// Fields:
//  ID        – primary key identifier.
//  RoomID    – room in which the showing takes place.
//  MovieID   – movie being shown.
//  StartsAt  – when the showing begins; availability cache entries for
//              this session's seats expire no later than this instant.
//  EndsAt    – when the showing ends.
//  CreatedAt – row creation timestamp.
type Session struct {
	ID        uint64    // sessions.id
	RoomID    uint64    // sessions.room_id
	MovieID   uint64    // sessions.movie_id
	StartsAt  time.Time // sessions.starts_at
	EndsAt    time.Time // sessions.ends_at
	CreatedAt time.Time // sessions.created_at
}
