package admission

import (
	"fmt"
	"strings"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/jobstate/jdl"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

type executableValidator struct{}

func (v executableValidator) Validate(sub *submission) error {
	if strings.TrimSpace(sub.ad.LookupDefault(ExecutableAttribute, "")) == "" {
		return descriptionError("missing %s", ExecutableAttribute)
	}
	return nil
}

// ownerValidator checks that identity attributes in the description agree with the
// submitter, then writes the submitter's identity into the description.
type ownerValidator struct{}

func (v ownerValidator) Validate(sub *submission) error {
	id := &sub.identity
	if strings.TrimSpace(id.Owner) == "" {
		return descriptionError("missing owner")
	}
	if strings.TrimSpace(id.OwnerGroup) == "" {
		return descriptionError("missing owner group")
	}

	checks := []struct {
		attribute string
		expected  string
	}{
		{OwnerAttribute, id.Owner},
		{OwnerDNAttribute, id.OwnerDN},
		{OwnerGroupAttribute, id.OwnerGroup},
	}
	for _, check := range checks {
		given, ok := sub.ad.Lookup(check.attribute)
		if ok && check.expected != "" && strings.TrimSpace(given) != check.expected {
			return descriptionError("%s %q does not match submitter %q", check.attribute, given, check.expected)
		}
	}

	vo := voFromGroup(id.OwnerGroup)
	if id.VO != "" && vo != "" && id.VO != vo {
		return descriptionError("submitter %s %q does not match group %s", VOAttribute, id.VO, id.OwnerGroup)
	}
	if given, ok := sub.ad.Lookup(VOAttribute); ok && strings.TrimSpace(given) != "" {
		given = strings.TrimSpace(given)
		if id.VO != "" && given != id.VO {
			return descriptionError("%s %q does not match submitter %q", VOAttribute, given, id.VO)
		}
		if id.VO == "" && vo != "" && given != vo {
			return descriptionError("%s %q does not match group %s", VOAttribute, given, id.OwnerGroup)
		}
		vo = given
	}
	if id.VO == "" {
		id.VO = vo
	}
	if id.VO == "" {
		return descriptionError("cannot determine %s", VOAttribute)
	}

	sub.ad.SetString(OwnerAttribute, id.Owner)
	if id.OwnerDN != "" {
		sub.ad.SetString(OwnerDNAttribute, id.OwnerDN)
	}
	sub.ad.SetString(OwnerGroupAttribute, id.OwnerGroup)
	sub.ad.SetString(VOAttribute, id.VO)
	return nil
}

// voFromGroup derives the VO from a group named <vo>_<role>.
func voFromGroup(group string) string {
	if i := strings.Index(group, "_"); i > 0 {
		return group[:i]
	}
	return ""
}

type cpuTimeValidator struct {
	defaultCPUTime int64
}

func (v cpuTimeValidator) Validate(sub *submission) error {
	cpuTime, ok, err := sub.ad.GetInt(CPUTimeAttribute)
	if err != nil {
		return descriptionError("%s", err)
	}
	if !ok {
		cpuTime = v.defaultCPUTime
	}
	if cpuTime <= 0 {
		return descriptionError("%s must be positive, got %d", CPUTimeAttribute, cpuTime)
	}
	sub.cpuTime = cpuTime
	sub.ad.SetInt(CPUTimeAttribute, cpuTime)
	return nil
}

type platformValidator struct {
	resolver platform.Resolver
}

func (v platformValidator) Validate(sub *submission) error {
	requested := util.UniqueNonBlank(sub.ad.GetList(PlatformAttribute))
	if len(requested) == 0 {
		requested = []string{platform.AnyPlatform}
	}
	compatible := map[string]bool{}
	for _, r := range requested {
		platforms, err := v.resolver.Compatible(r)
		if err != nil {
			return &ValidationError{MinorStatus: fmt.Sprintf("%s: %s", status.OSCompatibilityMinorPrefix, err)}
		}
		for _, c := range platforms {
			compatible[c] = true
		}
	}
	if len(compatible) == 0 {
		return &ValidationError{
			MinorStatus: fmt.Sprintf("%s: no platform compatible with %s", status.OSCompatibilityMinorPrefix, strings.Join(requested, ",")),
		}
	}
	sub.platforms = util.SortedKeys(compatible)
	return nil
}

type siteValidator struct{}

func (v siteValidator) Validate(sub *submission) error {
	sites := util.UniqueNonBlank(sub.ad.GetList(SiteAttribute))
	for _, site := range sites {
		if strings.EqualFold(site, AnySite) {
			sites = []string{}
			break
		}
	}
	sub.requestedSites = sites
	if len(sites) == 0 {
		sub.ad.Delete(SiteAttribute)
	} else {
		sub.ad.Set(SiteAttribute, jdl.StringList(sites))
	}
	return nil
}
