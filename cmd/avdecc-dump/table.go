package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/avdecc-go/avdecc/pkg/avdecc/adp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
)

func itoa(n int) string { return strconv.Itoa(n) }

// renderDiscoveredEntities prints one row per currently advertising
// interface, the human-readable analogue of the original's console
// discovery listing.
func renderDiscoveredEntities(w io.Writer, snaps []adp.EntitySnapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Entity ID", "MAC", "Grandmaster", "Identify Index", "Capabilities"})
	for _, snap := range snaps {
		table.Append([]string{
			snap.Key.EntityID.String(),
			snap.ADPDU.Ethernet.SrcMAC.String(),
			fmt.Sprintf("0x%016X", snap.ADPDU.GptpGrandmasterID),
			itoa(int(snap.ADPDU.IdentifyControlIndex)),
			fmt.Sprintf("0x%08X", snap.ADPDU.EntityCapabilities),
		})
	}
	table.Render()
}

// renderEntityModel prints a descriptor-count summary table for one
// enumerated entity, covering every configuration in its tree.
func renderEntityModel(w io.Writer, tree *entitymodel.EntityNode) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Descriptor type", "Count"})
	table.Append([]string{"Name", tree.EntityName})
	for _, cfg := range tree.Configurations {
		table.Append([]string{"Configuration", cfg.Name})
		table.Append([]string{"  AudioUnits", itoa(len(cfg.AudioUnits))})
		table.Append([]string{"  StreamInputs", itoa(len(cfg.StreamInputs))})
		table.Append([]string{"  StreamOutputs", itoa(len(cfg.StreamOutputs))})
		table.Append([]string{"  AvbInterfaces", itoa(len(cfg.AvbInterfaces))})
		table.Append([]string{"  ClockDomains", itoa(len(cfg.ClockDomains))})
		table.Append([]string{"  Locales", itoa(len(cfg.Locales))})
	}
	table.Render()
}
