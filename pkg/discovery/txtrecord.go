package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rillstream/rill-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeNodeTXT creates TXT records for a node announcement.
func EncodeNodeTXT(info *NodeInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyNodeID] = info.NodeID
	txt[TXTKeyVersion] = info.Version

	// Optional fields
	if info.Cluster != "" {
		txt[TXTKeyCluster] = info.Cluster
	}
	if len(info.Fingerprint) > 0 {
		txt[TXTKeyFingerprint] = hex.EncodeToString(info.Fingerprint)
	}

	return txt
}

// DecodeNodeTXT parses TXT records from a node announcement.
func DecodeNodeTXT(txt TXTRecordMap) (*NodeInfo, error) {
	info := &NodeInfo{}

	var ok bool
	info.NodeID, ok = txt[TXTKeyNodeID]
	if !ok || info.NodeID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyNodeID)
	}

	info.Version, ok = txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if _, err := version.Parse(info.Version); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, info.Version)
	}

	info.Cluster = txt[TXTKeyCluster]

	if fp, ok := txt[TXTKeyFingerprint]; ok {
		raw, err := hex.DecodeString(fp)
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFingerprint, fp)
		}
		info.Fingerprint = raw
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, the format used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a
// TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}
