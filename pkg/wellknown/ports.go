package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"

	"nft-acceptance-tester/internal/model"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

type ServiceEntry struct {
	Protocol model.Protocol
	Port     int
}

var serviceRegistry map[string][]ServiceEntry

func init() {
	serviceRegistry = make(map[string][]ServiceEntry)
	reader := csv.NewReader(bytes.NewBufferString(wellKnownPortsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded well_known_ports.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded well_known_ports.csv: %v", err)
		}
		if len(record) < 3 {
			continue
		}

		port, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}

		register(record[1], model.TCP, port)
		register(record[2], model.UDP, port)
	}
}

func register(name string, protocol model.Protocol, port int) {
	name = strings.TrimSpace(name)
	if name == "" || name == "N/A" {
		return
	}
	entry := ServiceEntry{Protocol: protocol, Port: port}
	key := strings.ToUpper(name)
	serviceRegistry[key] = append(serviceRegistry[key], entry)
	// Add common alias for DNS
	if name == "domain" {
		serviceRegistry["DNS"] = append(serviceRegistry["DNS"], entry)
	}
}

// GetService returns the port and protocol for a well-known service name.
func GetService(name string) ([]ServiceEntry, bool) {
	entry, ok := serviceRegistry[strings.ToUpper(name)]
	return entry, ok
}

// Port resolves a service name to its port number. Names registered for
// both tcp and udp share one port.
func Port(name string) (int, bool) {
	entries, ok := GetService(name)
	if !ok || len(entries) == 0 {
		return 0, false
	}
	return entries[0].Port, true
}
