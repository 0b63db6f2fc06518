package twcc

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
)

// PacketResult is one sequence number's outcome as reported by a single
// transport-wide feedback packet: whether the remote end saw it and, if so,
// when it arrived there, paired with the locally recorded send time and
// size for the same sequence number.
type PacketResult struct {
	Seq      uint16
	Received bool
	SendTime Time
	RecvTime Time
	Size     uint64
}

// ReaderFactory builds FeedbackReader interceptors that all report decoded
// feedback to the same callback. onReport is invoked synchronously from the
// RTCP read path for every feedback packet received; it must not block.
type ReaderFactory struct {
	sendInfo *SendInfo
	onReport func([]PacketResult)
}

// NewReaderFactory returns a factory that pairs feedback arrivals with the
// send times recorded in sendInfo and delivers the joined results to
// onReport.
func NewReaderFactory(sendInfo *SendInfo, onReport func([]PacketResult)) *ReaderFactory {
	return &ReaderFactory{sendInfo: sendInfo, onReport: onReport}
}

// NewInterceptor implements interceptor.Factory.
func (f *ReaderFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &FeedbackReader{factory: f}, nil
}

// FeedbackReader decodes incoming transport-wide congestion control RTCP
// feedback and joins it against the locally recorded send-info table.
type FeedbackReader struct {
	interceptor.NoOp
	factory *ReaderFactory
}

// BindRTCPReader wraps reader to inspect every incoming RTCP packet batch
// for TransportLayerCC feedback, without otherwise altering the read path.
func (r *FeedbackReader) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}

		if attr == nil {
			attr = make(interceptor.Attributes)
		}
		pkts, perr := attr.GetRTCPPackets(b[:n])
		if perr != nil {
			// Malformed RTCP shouldn't take down the whole read path; the
			// caller already has its bytes, only our parse failed.
			return n, attr, nil
		}

		for _, pkt := range pkts {
			if tcc, ok := pkt.(*rtcp.TransportLayerCC); ok {
				r.factory.handle(tcc)
			}
		}

		return n, attr, nil
	})
}

// handle decodes one TransportLayerCC report into PacketResults, walking its
// packet-status chunks and recv-delta list in lockstep the way the draft
// describes: each non-"not received" symbol consumes one entry from
// RecvDeltas, in order, and advances a running reference clock.
func (f *ReaderFactory) handle(tcc *rtcp.TransportLayerCC) {
	results := make([]PacketResult, 0, tcc.PacketStatusCount)

	refTime := FromReferenceTime(int32(tcc.ReferenceTime))
	seq := tcc.BaseSequenceNumber
	deltaIdx := 0

	appendResult := func(received bool) {
		result := PacketResult{Seq: seq, Received: received}
		if received {
			if deltaIdx < len(tcc.RecvDeltas) {
				refTime = refTime.WithRecvDelta(tcc.RecvDeltas[deltaIdx].Delta)
				deltaIdx++
				result.RecvTime = refTime
			}
			result.SendTime, result.Size = f.sendInfo.Load(seq)
		}
		results = append(results, result)
		seq++
	}

	for _, chunk := range tcc.PacketChunks {
		switch c := chunk.(type) {
		case *rtcp.RunLengthChunk:
			for i := uint16(0); i < c.RunLength; i++ {
				appendResult(c.PacketStatusSymbol != rtcp.TypeTCCPacketNotReceived)
			}
		case *rtcp.StatusVectorChunk:
			for _, symbol := range c.SymbolList {
				appendResult(symbol != rtcp.TypeTCCPacketNotReceived)
			}
		}
	}

	if f.onReport != nil && len(results) > 0 {
		f.onReport(results)
	}
}
