package bwe

import "github.com/pion-peer/webrtc-peer/pkg/twcc"

// burstTimeUS bounds how far apart two packets' departure times may be and
// still be folded into the same burst.
const burstTimeUS = 5000

// packetGroup is a burst of packets treated as a single arrival-time sample.
type packetGroup struct {
	earliestDeparture twcc.Time
	departure         twcc.Time
	arrival           twcc.Time
	sizeBytes         uint64
	numPackets        uint64
}

func newPacketGroup(departure, arrival twcc.Time, size uint64) *packetGroup {
	return &packetGroup{
		earliestDeparture: departure,
		departure:         departure,
		arrival:           arrival,
		sizeBytes:         size,
		numPackets:        1,
	}
}

// belongsTo reports whether a packet departing at departure and arriving at
// arrival should be folded into this group: either it departed within the
// group's burst window, or its inter-arrival time is both short and smaller
// than its inter-departure time (the group is still catching up, not yet a
// new burst).
func (g *packetGroup) belongsTo(departure, arrival twcc.Time) bool {
	if departure.SmallDeltaSub(g.earliestDeparture) <= burstTimeUS {
		return true
	}
	interArrival := arrival.SmallDeltaSub(g.arrival)
	interDeparture := departure.SmallDeltaSub(g.departure)
	return interArrival < burstTimeUS && interArrival-interDeparture < 0
}

func (g *packetGroup) add(departure, arrival twcc.Time, size uint64) {
	g.sizeBytes += size
	g.numPackets++
	if departure.After(g.departure) {
		g.departure = departure
	}
	if arrival.After(g.arrival) {
		g.arrival = arrival
	}
}

func (g *packetGroup) interDeparture(prev *packetGroup) int64 {
	return g.departure.SmallDeltaSub(prev.departure)
}

func (g *packetGroup) interArrival(prev *packetGroup) int64 {
	return g.arrival.SmallDeltaSub(prev.arrival)
}
