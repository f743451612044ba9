package parser

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-acceptance-tester/internal/model"
)

func newMockParser(t *testing.T) (*MariaDBParser, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	p := newMariaDBParser(db)
	t.Cleanup(p.Close)
	return p, mock
}

func expectTopology(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(queryNetworks).WillReturnRows(
		sqlmock.NewRows([]string{"name", "netaddress", "netmask"}).
			AddRow("HQ_LAN", "192.168.0.0", "24").
			AddRow("dmz", "172.16.0.0", "255.255.0.0"),
	)
	mock.ExpectQuery(queryMachines).WillReturnRows(
		sqlmock.NewRows([]string{"name", "ip_addresses", "management", "username", "password", "nftable"}).
			AddRow("HQFW", `["192.168.0.1", "172.16.0.1"]`, "10.0.0.1", "root", "toor", "hqfw.nft").
			AddRow("client", `["192.168.0.10"]`, "10.0.0.2", "root", "toor", nil),
	)
}

func TestMariaDBParser(t *testing.T) {
	p, mock := newMockParser(t)
	expectTopology(mock)
	mock.ExpectQuery(queryTestcases).WillReturnRows(
		sqlmock.NewRows([]string{"name", "source", "destination", "proto", "s_ports", "d_ports", "points", "allow", "special"}).
			AddRow("web", "Client", "HQFW", "tcp", nil, `[80, "https"]`, 3, true, `{"count": 2}`).
			AddRow(nil, "client", "dmz", "icmpv4", nil, nil, nil, false, nil),
	)

	require.NoError(t, p.Parse(func(string) bool { return true }))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, p.Network.Networks, 2)
	assert.Equal(t, "172.16.0.0/16", p.Network.Networks["dmz"].Prefix.String())
	assert.Len(t, p.Network.Machines["hqfw"].IPs, 2)
	assert.Equal(t, "", p.Network.Machines["client"].Script)

	require.Len(t, p.Testcases.Testcases, 2)
	web := p.Testcases.Testcases[0]
	assert.Equal(t, "client", web.Source)
	assert.Equal(t, "hqfw", web.Destination)
	assert.Equal(t, []int{80, 443}, web.DestinationPorts)
	assert.Equal(t, 3, web.Points)
	assert.True(t, web.Allow)
	assert.Equal(t, float64(2), web.Special["count"])

	unnamed := p.Testcases.Testcases[1]
	assert.Equal(t, "testcase_1", unnamed.Name)
	assert.Equal(t, 1, unnamed.Points)
	assert.False(t, unnamed.Allow)
}

func TestMariaDBParserStopsOnMissingScripts(t *testing.T) {
	p, mock := newMockParser(t)
	expectTopology(mock)

	err := p.Parse(func(string) bool { return false })
	assert.True(t, errors.Is(err, model.ErrMissingTopologyData), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMariaDBParserQueryError(t *testing.T) {
	p, mock := newMockParser(t)
	mock.ExpectQuery(queryNetworks).WillReturnError(errors.New("table ant_network doesn't exist"))

	err := p.Parse(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load networks")
}

func TestMariaDBParserBadPortsColumn(t *testing.T) {
	p, mock := newMockParser(t)
	expectTopology(mock)
	mock.ExpectQuery(queryTestcases).WillReturnRows(
		sqlmock.NewRows([]string{"name", "source", "destination", "proto", "s_ports", "d_ports", "points", "allow", "special"}).
			AddRow("web", "client", "hqfw", "tcp", `not json`, nil, 1, true, nil),
	)

	err := p.Parse(func(string) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s_ports")
}

func TestNewMariaDBParserErrors(t *testing.T) {
	_, err := NewMariaDBParser("invalid-dsn")
	if err == nil {
		t.Errorf("expected error for invalid DSN")
	}
}
