package uma

import (
	"encoding/json"
	"fmt"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
)

const MAJOR_VERSION = 1
const MINOR_VERSION = 0

var UmaProtocolVersion = fmt.Sprintf("%d.%d", MAJOR_VERSION, MINOR_VERSION)

type UnsupportedVersionError struct {
	UnsupportedVersion     string `json:"unsupportedVersion"`
	SupportedMajorVersions []int  `json:"supportedMajorVersions"`
}

func (e UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version: %s", e.UnsupportedVersion)
}

func (e UnsupportedVersionError) ToJSON() (string, error) {
	data := map[string]interface{}{
		"status":                 "ERROR",
		"reason":                 e.Error(),
		"code":                   generated.UnsupportedUmaVersion.Code,
		"unsupportedVersion":     e.UnsupportedVersion,
		"supportedMajorVersions": e.SupportedMajorVersions,
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

func (e UnsupportedVersionError) ToHttpStatusCode() int {
	return generated.UnsupportedUmaVersion.HTTPStatusCode
}

func GetSupportedMajorVersions() []int {
	// NOTE: In the future, we may want to support multiple major versions, but for now, this keeps
	// things simple.
	return []int{MAJOR_VERSION}
}

// SelectLowerVersion returns whichever of the two versions is lower.
func SelectLowerVersion(version1String string, version2String string) (*string, error) {
	version1, err := ParseVersion(version1String)
	if err != nil {
		return nil, err
	}
	version2, err := ParseVersion(version2String)
	if err != nil {
		return nil, err
	}
	if version1.Major > version2.Major || (version1.Major == version2.Major && version1.Minor > version2.Minor) {
		return &version2String, nil
	} else {
		return &version1String, nil
	}
}

func IsVersionSupported(version string) bool {
	parsedVersion, err := ParseVersion(version)
	if err != nil || parsedVersion == nil {
		return false
	}
	for _, major := range GetSupportedMajorVersions() {
		if major == parsedVersion.Major {
			return true
		}
	}
	return false
}

// NegotiateVersion picks the protocol version for a response given the version the sender asked for. An empty
// request version means the sender did not negotiate and gets the latest version.
func NegotiateVersion(requestedVersion string) (string, error) {
	if requestedVersion == "" {
		return UmaProtocolVersion, nil
	}
	if !IsVersionSupported(requestedVersion) {
		return "", UnsupportedVersionError{
			UnsupportedVersion:     requestedVersion,
			SupportedMajorVersions: GetSupportedMajorVersions(),
		}
	}
	selected, err := SelectLowerVersion(requestedVersion, UmaProtocolVersion)
	if err != nil {
		return "", err
	}
	return *selected, nil
}

type ParsedVersion struct {
	Major int
	Minor int
}

func ParseVersion(version string) (*ParsedVersion, error) {
	var major, minor int
	_, err := fmt.Sscanf(version, "%d.%d", &major, &minor)
	if err != nil {
		return nil, err
	}
	return &ParsedVersion{
		Major: major,
		Minor: minor,
	}, nil
}

func (v *ParsedVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
