package board

// DrawPixel is one pixel in a draw call's arguments, as parsed from chain
// receipt JSON (spec.md §4.2) or rendered back out in an outbound envelope.
type DrawPixel struct {
	X     int32  `json:"x"`
	Y     int32  `json:"y"`
	Color string `json:"color"`
}

// DrawEvent is a fully resolved draw event ready for the Applier, built by
// the Ingestor from one qualifying receipt (spec.md §4.2).
type DrawEvent struct {
	PredecessorID    string      `json:"predecessor_id"`
	BlockHeight      uint64      `json:"block_height"`
	BlockTimestampMs uint64      `json:"block_timestamp_ms"`
	Pixels           []DrawPixel `json:"pixels"`
}

// AppliedPixel is one pixel actually written to a region blob by Apply,
// in world coordinates, ready for the outbound WebSocket envelope.
type AppliedPixel struct {
	X, Y    int32
	R, G, B uint8
	OwnerID uint32
}

// Color renders the pixel's color as an uppercase 6-hex-digit string.
func (p AppliedPixel) Color() string {
	return RGBToHex6(p.R, p.G, p.B)
}

// RegionCoord identifies a region by integer coordinates, used for the
// newly_opened return value and for region-scoped read API endpoints.
type RegionCoord struct {
	RX, RY int32
}
