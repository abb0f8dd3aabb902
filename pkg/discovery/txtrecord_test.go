package discovery_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rillstream/rill-go/pkg/discovery"
)

func TestEncodeNodeTXT_AllFields(t *testing.T) {
	fp := bytes.Repeat([]byte{0xab}, sha256.Size)
	info := &discovery.NodeInfo{
		NodeID:      "node-1",
		Cluster:     "prod",
		Version:     "1.0",
		Fingerprint: fp,
	}

	txt := discovery.EncodeNodeTXT(info)
	assert.Equal(t, "node-1", txt[discovery.TXTKeyNodeID])
	assert.Equal(t, "prod", txt[discovery.TXTKeyCluster])
	assert.Equal(t, "1.0", txt[discovery.TXTKeyVersion])
	assert.Len(t, txt[discovery.TXTKeyFingerprint], sha256.Size*2)
}

func TestEncodeNodeTXT_OptionalFieldsOmitted(t *testing.T) {
	txt := discovery.EncodeNodeTXT(&discovery.NodeInfo{NodeID: "node-1", Version: "1.0"})

	_, hasCluster := txt[discovery.TXTKeyCluster]
	assert.False(t, hasCluster)
	_, hasFP := txt[discovery.TXTKeyFingerprint]
	assert.False(t, hasFP)
}

func TestDecodeNodeTXT_RoundTrip(t *testing.T) {
	fp := bytes.Repeat([]byte{0x5c}, sha256.Size)
	info := &discovery.NodeInfo{
		NodeID:      "node-7",
		Cluster:     "staging",
		Version:     "1.2",
		Fingerprint: fp,
	}

	decoded, err := discovery.DecodeNodeTXT(discovery.EncodeNodeTXT(info))
	require.NoError(t, err)
	assert.Equal(t, info, decoded)
}

func TestDecodeNodeTXT_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		txt     discovery.TXTRecordMap
		wantErr error
	}{
		{
			name:    "missing node id",
			txt:     discovery.TXTRecordMap{discovery.TXTKeyVersion: "1.0"},
			wantErr: discovery.ErrMissingRequired,
		},
		{
			name:    "missing version",
			txt:     discovery.TXTRecordMap{discovery.TXTKeyNodeID: "n1"},
			wantErr: discovery.ErrMissingRequired,
		},
		{
			name: "malformed version",
			txt: discovery.TXTRecordMap{
				discovery.TXTKeyNodeID:  "n1",
				discovery.TXTKeyVersion: "abc",
			},
			wantErr: discovery.ErrInvalidVersion,
		},
		{
			name: "short fingerprint",
			txt: discovery.TXTRecordMap{
				discovery.TXTKeyNodeID:      "n1",
				discovery.TXTKeyVersion:     "1.0",
				discovery.TXTKeyFingerprint: "abcd",
			},
			wantErr: discovery.ErrInvalidFingerprint,
		},
		{
			name: "non-hex fingerprint",
			txt: discovery.TXTRecordMap{
				discovery.TXTKeyNodeID:      "n1",
				discovery.TXTKeyVersion:     "1.0",
				discovery.TXTKeyFingerprint: "zz",
			},
			wantErr: discovery.ErrInvalidFingerprint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discovery.DecodeNodeTXT(tt.txt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := discovery.StringsToTXTRecords([]string{"NI=node-1", "PV=1.0", "flag", "CL=a=b"})

	assert.Equal(t, "node-1", txt["NI"])
	assert.Equal(t, "1.0", txt["PV"])
	assert.Equal(t, "", txt["flag"])
	// Values may themselves contain '='.
	assert.Equal(t, "a=b", txt["CL"])
}

func TestTXTRecordsToStrings_RoundTrip(t *testing.T) {
	in := discovery.TXTRecordMap{"NI": "node-1", "PV": "1.0"}
	out := discovery.StringsToTXTRecords(discovery.TXTRecordsToStrings(in))
	assert.Equal(t, in, out)
}
