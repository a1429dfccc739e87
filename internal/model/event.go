package model

import "time"

// Event represents a scheduled item whose seats can be reserved.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – display title.
//  Description – free-form description text.
//  DateTime    – when the event takes place.
type Event struct {
	ID          int64     // events.id
	Title       string    // events.title
	Description string    // events.description
	DateTime    time.Time // events.date_time
}
