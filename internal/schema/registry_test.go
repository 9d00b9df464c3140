package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	cases := map[string]Key{
		"CALLS":                  Calls,
		"leads":                  Leads,
		" init ":                 Init,
		"Discovery_Meeting":      Disc,
		"New Client List":        NCL,
		"new_client_list_master": NCL,
	}
	for in, want := range cases {
		got, err := ParseKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKey("payroll")
	assert.Error(t, err)
}

func TestEmptyHeadersCarryBatchMetadata(t *testing.T) {
	for _, k := range Keys() {
		spec := MustLookup(k)
		headers := spec.EmptyHeaders()
		require.GreaterOrEqual(t, len(headers), len(MetaColumns))
		assert.Equal(t, MetaColumns, headers[len(headers)-len(MetaColumns):], k)

		seen := map[string]bool{}
		for _, h := range headers {
			assert.False(t, seen[h], "duplicate header %q in %s", h, k)
			seen[h] = true
		}
	}
}

func TestRangeTablesDeclareDateColumn(t *testing.T) {
	for _, k := range Keys() {
		spec := MustLookup(k)
		if spec.Policy != PolicyRange {
			continue
		}
		assert.Contains(t, spec.Headers, spec.DateColumn, k)
	}
}

func TestNamesPrimaryFirst(t *testing.T) {
	spec := MustLookup(NCL)
	assert.Equal(t, []string{"New_Client_List_Master", "New_Clients", "New Client List"}, spec.Names())
}
