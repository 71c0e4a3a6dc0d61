// Package acmp implements the controller-side half of the ACMP state
// machine (spec §4.F): issuing ConnectRx/DisconnectRx/GetRxState to a
// listener and GetTxState/GetTxConnection directly to a talker, plus
// passive sniffing of every ACMP response on the wire (ACMP is multicast,
// so a controller observes connections it did not itself initiate).
package acmp

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// Callback delivers a decoded ACMPDU response, or an error once the
// command's retry budget is exhausted.
type Callback func(resp *protocol.ACMPDU, err error)

// Client is the controller-side ACMP command dispatcher for one local
// entity over one Protocol Interface.
type Client struct {
	pi                 *protocolif.Interface
	controllerEntityID protocol.EntityID
}

// NewClient creates an ACMP command client. controllerEntityID is carried
// in every outbound command's ControllerEntityID field.
func NewClient(pi *protocolif.Interface, controllerEntityID protocol.EntityID) *Client {
	return &Client{pi: pi, controllerEntityID: controllerEntityID}
}

func (c *Client) send(messageType protocol.AcmpMessageType, talker, listener protocol.EntityID, talkerUnique, listenerUnique protocol.DescriptorIndex, connectionCount uint16, flags protocol.AcmpFlags, cb Callback) error {
	pdu := &protocol.ACMPDU{
		Ethernet: protocol.EthernetHeader{
			DstMAC: protocol.AcmpMulticastMAC,
			SrcMAC: c.pi.LocalMacAddress(),
		},
		MessageType:        messageType,
		ControllerEntityID: c.controllerEntityID,
		TalkerEntityID:     talker,
		ListenerEntityID:   listener,
		TalkerUniqueID:     talkerUnique,
		ListenerUniqueID:   listenerUnique,
		ConnectionCount:    connectionCount,
		Flags:              flags,
	}
	return c.pi.SendACMPCommand(pdu.Serialize(), func(response []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		resp, perr := protocol.ParseACMPDU(response)
		if perr != nil {
			cb(nil, perr)
			return
		}
		cb(resp, nil)
	})
}

// ConnectStream issues ConnectRx to listener, asking it to connect to
// (talker, talkerUnique). The listener internally issues ConnectTx to the
// talker and reports the combined result back as the ConnectRx response
// (spec §4.F "controller correlates the final Rx response").
func (c *Client) ConnectStream(talker, listener protocol.EntityID, talkerUnique, listenerUnique protocol.DescriptorIndex, flags protocol.AcmpFlags, cb Callback) error {
	return c.send(protocol.AcmpConnectRxCommand, talker, listener, talkerUnique, listenerUnique, 0, flags, cb)
}

// DisconnectStream issues DisconnectRx to listener.
func (c *Client) DisconnectStream(talker, listener protocol.EntityID, talkerUnique, listenerUnique protocol.DescriptorIndex, cb Callback) error {
	return c.send(protocol.AcmpDisconnectRxCommand, talker, listener, talkerUnique, listenerUnique, 0, 0, cb)
}

// GetRxState queries a listener stream's current connection state.
func (c *Client) GetRxState(listener protocol.EntityID, listenerUnique protocol.DescriptorIndex, cb Callback) error {
	return c.send(protocol.AcmpGetRxStateCommand, protocol.NullEntityID, listener, 0, listenerUnique, 0, 0, cb)
}

// GetTxState queries a talker stream's current connection state directly
// (spec §4.F: GetTxState is addressed to the talker, not the listener).
func (c *Client) GetTxState(talker protocol.EntityID, talkerUnique protocol.DescriptorIndex, cb Callback) error {
	return c.send(protocol.AcmpGetTxStateCommand, talker, protocol.NullEntityID, talkerUnique, 0, 0, 0, cb)
}

// GetTxConnection retrieves one entry of a talker stream's connection list
// by connectionCount (spec §4.F "connection-count reconciliation").
func (c *Client) GetTxConnection(talker protocol.EntityID, talkerUnique protocol.DescriptorIndex, connectionCount uint16, cb Callback) error {
	return c.send(protocol.AcmpGetTxConnectionCommand, talker, protocol.NullEntityID, talkerUnique, 0, connectionCount, 0, cb)
}
