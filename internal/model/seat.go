package model

// Seat status values as stored in the seats table.  SOLD is terminal:
// no transition ever leaves it.  HELD never appears in the authoritative
// store from this service's perspective; it is derived from live hold
// keys when a seat map snapshot is built.
const (
	SeatAvailable = "AVAILABLE"
	SeatHeld      = "HELD"
	SeatSold      = "SOLD"
)

// Seat is the authoritative record for a single seat of an event.
// The relational store owns it; the Redis "sold" marker is only a
// rebuildable read-through cache of the status field.
//
// Fields:
//  ID      – primary key identifier.
//  EventID – event this seat belongs to.
//  RowNo   – row position within the venue grid.
//  ColNo   – column position within the venue grid.
//  Price   – price in minor units.
//  Status  – AVAILABLE, HELD or SOLD.
type Seat struct {
	ID      int64  // seats.id
	EventID int64  // seats.event_id
	RowNo   int    // seats.row_no
	ColNo   int    // seats.col_no
	Price   int    // seats.price
	Status  string // seats.status
}
