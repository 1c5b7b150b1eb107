package mcproto

import (
	"sort"

	"github.com/dreamscached/minequery/v2"
)

// DefaultVersion is used for backends with an unknown version
const DefaultVersion = "1.16.5"

// versionProtocol maps minecraft versions to their protocol number
var versionProtocol = map[string]int32{
	"1.20.4": 765,
	"1.20.2": 764,
	"1.20.1": 763,
	"1.19.4": 762,
	"1.19.3": 761,
	"1.19.2": 760,
	"1.19":   minequery.Ping17ProtocolVersion119,
	"1.18.2": minequery.Ping17ProtocolVersion1182,
	"1.18.1": minequery.Ping17ProtocolVersion1181,
	"1.17.1": minequery.Ping17ProtocolVersion1171,
	"1.16.5": minequery.Ping17ProtocolVersion1165,
	"1.15.2": minequery.Ping17ProtocolVersion1152,
	"1.14.4": minequery.Ping17ProtocolVersion1144,
	"1.12.2": minequery.Ping17ProtocolVersion1122,
	"1.8.9":  minequery.Ping17ProtocolVersion189,
}

// ProtocolForVersion returns the protocol number of a minecraft version.
// ok is false if the version is unknown, in which case the DefaultVersion protocol is returned.
func ProtocolForVersion(version string) (protocol int32, ok bool) {
	if p, ok := versionProtocol[version]; ok {
		return p, true
	}
	return versionProtocol[DefaultVersion], false
}

// DefaultProtocol returns the protocol number of DefaultVersion
func DefaultProtocol() int32 {
	return versionProtocol[DefaultVersion]
}

// SupportedVersions returns the known minecraft versions
func SupportedVersions() []string {
	versions := make([]string, 0, len(versionProtocol))
	for v := range versionProtocol {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
