package protocol

import (
	"strconv"
	"strings"

	"torrserve/internal/domain"
)

const (
	legacyBanner = "ok"
	matrixBanner = "MatriX"
)

// ParseBanner maps the /echo body to a server version. The legacy "Ok"
// literal means v1, a MatriX banner means the v2 baseline, and dotted or
// underscored numbers are read as up to three components.
func ParseBanner(body string) (domain.Version, bool) {
	banner := strings.TrimSpace(body)
	if banner == "" {
		return domain.VersionUnknown, false
	}
	if strings.EqualFold(banner, legacyBanner) {
		return domain.V1Legacy, true
	}
	if banner == matrixBanner || strings.HasPrefix(banner, matrixBanner+".") {
		return domain.MatrixBaseline, true
	}

	parts := strings.Split(strings.ReplaceAll(banner, "_", "."), ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	nums := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return domain.VersionUnknown, false
		}
		nums[i] = n
	}
	return domain.NewVersion(nums[0], nums[1], nums[2]), true
}
