package engine

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"nft-acceptance-tester/internal/model"
)

func testMapping() *model.ProtocolMapping {
	return &model.ProtocolMapping{
		Order: []string{"tcp", "udp", "icmp"},
		Bindings: map[string][]model.Binding{
			"tcp": {
				{Variable: "targets", Field: model.DestinationSentinel},
				{Variable: "ports", Field: model.FieldDestPort},
				{Variable: "expected", Field: model.FieldAllow},
			},
			"udp": {
				{Variable: "targets", Field: model.DestinationSentinel},
				{Variable: "ports", Field: model.FieldDestPort},
			},
			"icmp": {
				{Variable: "targets", Field: model.DestinationSentinel},
			},
		},
	}
}

func TestBuildInventory(t *testing.T) {
	cfg := testTopology(t)
	cases := []model.Testcase{
		{Name: "ssh", Source: "client", Destination: "fw", Proto: "tcp", DestinationPorts: []int{22}, Points: 1, Allow: true},
		{Name: "dns", Source: "fw", Destination: "8.8.8.8", Proto: "udp", DestinationPorts: []int{53}, Points: 1, Allow: false},
	}

	inv, err := BuildInventory(cases, cfg, testMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inv) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(inv))
	}
	if len(inv["icmp"].Hosts) != 0 {
		t.Errorf("expected empty icmp group, got %v", inv["icmp"].Hosts)
	}

	ssh, ok := inv["tcp"].Hosts["client-ssh"]
	if !ok {
		t.Fatalf("expected host client-ssh in tcp group, got %v", inv["tcp"].Hosts)
	}
	want := model.HostVars{
		"ansible_host":     "10.0.0.2",
		"ansible_user":     "user",
		"ansible_password": "pw",
		"targets":          []string{"192.168.0.10", "172.16.0.1"},
		"ports":            []int{22},
		"expected":         true,
	}
	if !reflect.DeepEqual(ssh, want) {
		t.Errorf("expected %v, got %v", want, ssh)
	}

	dns := inv["udp"].Hosts["fw-dns"]
	if got := dns["targets"]; !reflect.DeepEqual(got, []string{"8.8.8.8"}) {
		t.Errorf("expected resolved literal destination, got %v", got)
	}
	if _, ok := dns["expected"]; ok {
		t.Errorf("udp mapping does not bind allow, got %v", dns)
	}
}

func TestBuildInventoryLastWriteWins(t *testing.T) {
	cfg := testTopology(t)
	cases := []model.Testcase{
		{Name: "dup", Source: "client", Destination: "fw", Proto: "tcp", DestinationPorts: []int{22}},
		{Name: "dup", Source: "client", Destination: "fw", Proto: "tcp", DestinationPorts: []int{443}},
	}

	inv, err := BuildInventory(cases, cfg, testMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := inv["tcp"].Hosts["client-dup"]["ports"]; !reflect.DeepEqual(got, []int{443}) {
		t.Errorf("expected last testcase to win, got %v", got)
	}
}

func TestBuildInventoryErrors(t *testing.T) {
	cfg := testTopology(t)

	tests := []struct {
		name    string
		tc      model.Testcase
		mapping *model.ProtocolMapping
		wantErr error
		wantMsg string
	}{
		{
			name:    "invalid protocol",
			tc:      model.Testcase{Name: "t", Source: "fw", Destination: "client", Proto: "foo"},
			mapping: testMapping(),
			wantErr: model.ErrInvalidProtocol,
			wantMsg: "foo is not a valid proto",
		},
		{
			name:    "unknown source",
			tc:      model.Testcase{Name: "t", Source: "ghost", Destination: "client", Proto: "tcp"},
			mapping: testMapping(),
			wantErr: model.ErrUnknownMachine,
		},
		{
			name:    "unresolvable destination",
			tc:      model.Testcase{Name: "t", Source: "fw", Destination: "nowhere", Proto: "tcp"},
			mapping: testMapping(),
			wantErr: model.ErrInvalidDestination,
		},
		{
			name: "unknown field",
			tc:   model.Testcase{Name: "t", Source: "fw", Destination: "client", Proto: "tcp"},
			mapping: &model.ProtocolMapping{
				Order:    []string{"tcp"},
				Bindings: map[string][]model.Binding{"tcp": {{Variable: "x", Field: "bogus"}}},
			},
			wantErr: model.ErrFieldNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := model.Testcase{Name: "ok", Source: "client", Destination: "fw", Proto: "tcp"}
			inv, err := BuildInventory([]model.Testcase{valid, tt.tc}, cfg, tt.mapping)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, err.Error())
			}
			if inv != nil {
				t.Errorf("expected no partial inventory, got %v", inv)
			}
		})
	}
}

func TestBuildSetupInventory(t *testing.T) {
	cfg := testTopology(t)

	inv, err := BuildSetupInventory(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	group, ok := inv[SetupGroup]
	if !ok {
		t.Fatalf("expected group %s, got %v", SetupGroup, inv)
	}
	if len(group.Hosts) != 1 {
		t.Fatalf("expected only machines with scripts, got %v", group.Hosts)
	}

	fw := group.Hosts["fw"]
	abs, _ := filepath.Abs("rules/fw.nft")
	if fw["nft_file"] != abs {
		t.Errorf("expected nft_file %s, got %v", abs, fw["nft_file"])
	}
	if fw["filename"] != "fw.nft" {
		t.Errorf("expected filename fw.nft, got %v", fw["filename"])
	}
	if fw["ansible_host"] != "10.0.0.1" || fw["ansible_user"] != "root" || fw["ansible_password"] != "secret" {
		t.Errorf("unexpected credentials: %v", fw)
	}
}
