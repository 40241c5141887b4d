package domain

// RoomID identifies a classroom channel. In practice it is the course id
// the clients were enrolled into, so rooms come into existence the first
// time anyone joins and are never explicitly created.
type RoomID string
