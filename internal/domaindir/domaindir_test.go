package domaindir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/internal/domaindir"
)

func sampleEntries() []config.DomainEntry {
	return []config.DomainEntry{
		{Name: "us", WorkerAddr: "worker-us:50051", RegistryURL: "https://registry-us:8443", Capabilities: []string{"gpu"}},
		{Name: "eu", WorkerAddr: "worker-eu:50051", RegistryURL: "https://registry-eu:8443", Capabilities: []string{"compute"}},
	}
}

func TestDirectory_DomainsListsAllSorted(t *testing.T) {
	d := domaindir.New(sampleEntries())
	names, err := d.Domains(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"eu", "us"}, names)
}

func TestDirectory_LookupReturnsDomainInfo(t *testing.T) {
	d := domaindir.New(sampleEntries())
	info, err := d.Lookup(t.Context(), "eu")
	require.NoError(t, err)
	assert.Equal(t, "worker-eu:50051", info.Address)
	assert.Equal(t, []string{"compute"}, info.Capabilities)
}

func TestDirectory_LookupUnknownDomain(t *testing.T) {
	d := domaindir.New(sampleEntries())
	_, err := d.Lookup(t.Context(), "apac")
	require.ErrorIs(t, err, domaindir.ErrUnknownDomain)
}

func TestDirectory_ResolveWorkerAddr(t *testing.T) {
	d := domaindir.New(sampleEntries())
	addr, err := d.ResolveWorkerAddr("us")
	require.NoError(t, err)
	assert.Equal(t, "worker-us:50051", addr)

	_, err = d.ResolveWorkerAddr("missing")
	require.ErrorIs(t, err, domaindir.ErrUnknownDomain)
}

func TestDirectory_RegistryURL(t *testing.T) {
	d := domaindir.New(sampleEntries())
	url, err := d.RegistryURL("us")
	require.NoError(t, err)
	assert.Equal(t, "https://registry-us:8443", url)
}

func TestDirectory_EntriesRoundTrips(t *testing.T) {
	entries := sampleEntries()
	d := domaindir.New(entries)
	got := d.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, "eu", got[0].Name)
	assert.Equal(t, "us", got[1].Name)
}
