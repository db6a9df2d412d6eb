// Command test-dongle is a manual test for a BLE dongle.
// It opens the dongle, scans for a few seconds, and prints every
// advertiser heard. Power on a robot nearby before running it.
//
// Usage:
//
//	go run ./cmd/test-dongle --port /dev/ttyACM0 [--seconds 5]
package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/chaz8081/motion-installer/internal/ble"
	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
	"github.com/chaz8081/motion-installer/internal/registry"
	"github.com/chaz8081/motion-installer/internal/serialport"
)

func main() {
	port := flag.String("port", "", "dongle serial port (default: first detected dongle)")
	seconds := flag.Int("seconds", 5, "scan duration")
	flag.Parse()

	name := *port
	if name == "" {
		ports, err := serialport.List()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		dongles := serialport.Dongles(ports)
		if len(dongles) == 0 {
			fmt.Println("No dongle found; pass --port")
			return
		}
		name = dongles[0].Name
	}

	d, err := ble.OpenDongle(name, serialport.DefaultConfig())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*seconds)*time.Second)
	defer cancel()

	// A dongle with nothing running rejects this; the scan still starts.
	if err := d.EndProcedure(ctx); err != nil {
		fmt.Printf("End procedure: %v\n", err)
	}
	if err := d.Discover(ctx, bgapi.DiscoverGeneric); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Scanning on %s for %ds...\n", name, *seconds)

	type seen struct {
		rssi   int8
		public bool
		count  int
	}
	heard := make(map[[6]byte]*seen)

loop:
	for {
		select {
		case ev, ok := <-d.Events():
			if !ok {
				break loop
			}
			sr, ok := ev.(bgapi.ScanResponse)
			if !ok {
				continue
			}
			s := heard[sr.Sender]
			if s == nil {
				s = &seen{public: sr.AddressType == bgapi.AddressPublic}
				heard[sr.Sender] = s
			}
			s.rssi = sr.RSSI
			s.count++
		case <-ctx.Done():
			break loop
		}
	}
	if err := d.EndProcedure(context.Background()); err != nil {
		fmt.Printf("Error: stop scan: %v\n", err)
	}

	addrs := make([][6]byte, 0, len(heard))
	for a := range heard {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return heard[addrs[i]].rssi > heard[addrs[j]].rssi })

	fmt.Printf("\n%d advertisers:\n", len(addrs))
	for _, a := range addrs {
		s := heard[a]
		kind := "random"
		if s.public {
			kind = "public"
		}
		fmt.Printf("  %s  %-6s  rssi %4d  x%d\n", registry.AddressFromBytes(a[:]), kind, s.rssi, s.count)
	}
	fmt.Println("\nDone!")
}
