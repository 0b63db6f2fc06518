package bwe

import "github.com/pion-peer/webrtc-peer/pkg/twcc"

// windowSize is how many completed packet groups the history window keeps.
// Chosen so that, with 5 ms bursts, the window spans roughly 500 ms.
const windowSize = 100

type windowEntry struct {
	id         uint32
	arrival    twcc.Time
	sizeBytes  uint64
	numPackets uint64
}

type interDepartureEntry struct {
	id             uint32
	interDeparture int64
}

// history is a FIFO of completed packet groups with running byte/packet
// totals and an ascending-minima deque that reports the window's smallest
// inter-departure time in O(1).
type history struct {
	data            []windowEntry
	ascendingMinima []interDepartureEntry
	totalBytes      uint64
	totalPackets    uint64
}

func newHistory() *history {
	return &history{}
}

// addGroup records a sealed packet group and its inter-departure time
// relative to the group before it.
func (h *history) addGroup(g *packetGroup, interDeparture int64) {
	var id uint32
	if n := len(h.data); n > 0 {
		id = h.data[n-1].id + 1
	}
	entry := windowEntry{id: id, arrival: g.arrival, sizeBytes: g.sizeBytes, numPackets: g.numPackets}
	idt := interDepartureEntry{id: id, interDeparture: interDeparture}

	h.totalBytes += entry.sizeBytes
	h.totalPackets += entry.numPackets
	h.data = append(h.data, entry)

	switch {
	case len(h.data) < windowSize:
		h.ascendingMinima = append(h.ascendingMinima, idt)
	case len(h.data) == windowSize:
		h.ascendingMinima = append(h.ascendingMinima, idt)
		h.buildAscendingMinima()
	default:
		removed := h.data[0]
		h.data = h.data[1:]
		h.totalBytes -= removed.sizeBytes
		h.totalPackets -= removed.numPackets
		h.maintainAscendingMinima(removed.id, idt)
	}
}

// buildAscendingMinima runs once, the tick the window first fills, reducing
// the raw inter-departure sequence collected so far to its ascending-minima
// form.
func (h *history) buildAscendingMinima() {
	tmp := make([]interDepartureEntry, 0, len(h.ascendingMinima))
	start := 0
	for start < len(h.ascendingMinima) {
		minIdx := start
		for i := start + 1; i < len(h.ascendingMinima); i++ {
			if h.ascendingMinima[i].interDeparture < h.ascendingMinima[minIdx].interDeparture {
				minIdx = i
			}
		}
		tmp = append(tmp, h.ascendingMinima[minIdx])
		start = minIdx + 1
	}
	h.ascendingMinima = tmp
}

// maintainAscendingMinima keeps the deque ascending after the window slides
// by one group: pop back entries the new item invalidates, push the new
// item, then drop the front if it was the entry just evicted from data.
func (h *history) maintainAscendingMinima(idToRemove uint32, item interDepartureEntry) {
	for len(h.ascendingMinima) > 0 && h.ascendingMinima[len(h.ascendingMinima)-1].interDeparture > item.interDeparture {
		h.ascendingMinima = h.ascendingMinima[:len(h.ascendingMinima)-1]
	}
	h.ascendingMinima = append(h.ascendingMinima, item)
	if len(h.ascendingMinima) > 0 && h.ascendingMinima[0].id == idToRemove {
		h.ascendingMinima = h.ascendingMinima[1:]
	}
}

func (h *history) averagePacketSizeBytes() float64 {
	if h.totalPackets == 0 {
		return 0
	}
	return float64(h.totalBytes) / float64(h.totalPackets)
}

// receivedBandwidthBytesPerSec is the byte rate observed across the window,
// from the first to the last group's arrival time.
func (h *history) receivedBandwidthBytesPerSec() (float64, bool) {
	if len(h.data) == 0 {
		return 0, false
	}
	front, back := h.data[0], h.data[len(h.data)-1]
	timespanUS := back.arrival.SmallDeltaSub(front.arrival)
	if timespanUS <= 0 {
		return 0, false
	}
	return float64(h.totalBytes) / (float64(timespanUS) / 1e6), true
}

// smallestSendInterval reports the window's minimum inter-departure time,
// used as the Kalman filter's adaptation rate.
func (h *history) smallestSendInterval() (int64, bool) {
	if len(h.ascendingMinima) == 0 {
		return 0, false
	}
	if len(h.data) < windowSize {
		min := h.ascendingMinima[0].interDeparture
		for _, e := range h.ascendingMinima[1:] {
			if e.interDeparture < min {
				min = e.interDeparture
			}
		}
		return min, true
	}
	return h.ascendingMinima[0].interDeparture, true
}
