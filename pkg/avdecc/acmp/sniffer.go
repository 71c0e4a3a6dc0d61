package acmp

import "github.com/avdecc-go/avdecc/pkg/avdecc/protocol"

// ResponseSniffer observes every ACMP response on the wire, including
// connections this controller did not itself initiate (spec §4.F
// "sniffing": ACMP is multicast, so every node sees every exchange).
type ResponseSniffer interface {
	OnConnectResponseSniffed(resp *protocol.ACMPDU)
	OnDisconnectResponseSniffed(resp *protocol.ACMPDU)
	OnGetListenerStreamStateResponseSniffed(resp *protocol.ACMPDU)
}

// ObserveSniffedResponses subscribes sniffer to every ConnectRx,
// DisconnectRx, and GetRxState response the interface receives, regardless
// of which controller issued the original command. The returned func
// cancels the subscription.
func (c *Client) ObserveSniffedResponses(sniffer ResponseSniffer) func() {
	return c.pi.ObserveACMP(func(frame []byte) {
		resp, err := protocol.ParseACMPDU(frame)
		if err != nil || !resp.MessageType.IsResponse() {
			return
		}
		switch resp.MessageType {
		case protocol.AcmpConnectRxResponse:
			sniffer.OnConnectResponseSniffed(resp)
		case protocol.AcmpDisconnectRxResponse:
			sniffer.OnDisconnectResponseSniffed(resp)
		case protocol.AcmpGetRxStateResponse:
			sniffer.OnGetListenerStreamStateResponseSniffed(resp)
		}
	})
}
