// Package aecp implements the parts of the AECP state machine (spec §4.E)
// that sit above the Protocol Interface's generic command/response
// correlation: typed AEM command dispatch, the AddAudioMappings/
// RemoveAudioMappings payload-size guard, per-entity response-time
// statistics, and unsolicited-notification gap tracking.
package aecp

import (
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// AEMCallback delivers a decoded AEM response (or an error once the retry
// budget is exhausted) for one command.
type AEMCallback func(resp *protocol.AEMPDU, err error)

// responseStats is a running average of measured round-trip time, kept
// per remote entity (spec §4.E "record response time statistics").
type responseStats struct {
	count   uint64
	average time.Duration
}

func (s *responseStats) observe(d time.Duration) {
	s.count++
	s.average += (d - s.average) / time.Duration(s.count)
}

// Client is the controller-side AEM command dispatcher for one local
// entity over one Protocol Interface.
type Client struct {
	pi                 *protocolif.Interface
	controllerEntityID protocol.EntityID

	statsMu sync.Mutex
	stats   map[protocol.EntityID]*responseStats

	unsolMu sync.Mutex
	unsol   map[protocol.EntityID]*unsolicitedTracker
}

// NewClient creates an AEM command client. controllerEntityID is the local
// entity's own ID, carried in every outbound command's ControllerEntityID
// field.
func NewClient(pi *protocolif.Interface, controllerEntityID protocol.EntityID) *Client {
	return &Client{
		pi:                 pi,
		controllerEntityID: controllerEntityID,
		stats:              make(map[protocol.EntityID]*responseStats),
		unsol:              make(map[protocol.EntityID]*unsolicitedTracker),
	}
}

// SendCommand issues an AEM command to target and invokes cb exactly once
// with the decoded response or the terminal error (spec §4.C
// "sendAecpCommand", spec §4.E outbound command lifecycle).
func (c *Client) SendCommand(target protocol.EntityID, dstMAC protocol.MacAddress, commandType protocol.AemCommandType, commandSpecificData []byte, timeout protocolif.TimeoutKind, cb AEMCallback) error {
	pdu := &protocol.AEMPDU{
		AecpCommon: protocol.AecpCommon{
			Ethernet: protocol.EthernetHeader{
				DstMAC: dstMAC,
				SrcMAC: c.pi.LocalMacAddress(),
			},
			MessageType:        protocol.AecpAemCommand,
			TargetEntityID:     target,
			ControllerEntityID: c.controllerEntityID,
		},
		CommandType:         commandType,
		CommandSpecificData: commandSpecificData,
	}

	start := timeNow()
	return c.pi.SendAECPCommand(pdu.Serialize(), timeout, func(response []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		c.recordRTT(target, timeNow().Sub(start))
		resp, perr := protocol.ParseAEMPDU(response)
		if perr != nil {
			cb(nil, perr)
			return
		}
		cb(resp, nil)
	})
}

func (c *Client) recordRTT(target protocol.EntityID, d time.Duration) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[target]
	if !ok {
		s = &responseStats{}
		c.stats[target] = s
	}
	s.observe(d)
}

// AverageResponseTime returns the running average round-trip time measured
// for target, or zero if no response has ever been recorded.
func (c *Client) AverageResponseTime(target protocol.EntityID) time.Duration {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[target]
	if !ok {
		return 0
	}
	return s.average
}

// timeNow is a seam so tests could substitute a fake clock; production
// code always uses the wall clock.
var timeNow = time.Now

// ensureBadArguments wraps a local precondition failure the command must
// never transmit for (spec §4.E "payload size limit").
func ensureBadArguments(op string, err error) error {
	return errors.NewBadArgumentsError(op, err)
}
