// Package admission turns a submitted job description into the attributes stored for a job.
// The same checks run at first submission and when a job is rescheduled.
package admission

import (
	"fmt"
	"strings"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/jobstate/jdl"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

// AnySite is stored as the site of a job that did not request any particular site.
const AnySite = "ANY"

// Description attribute names read or written during admission.
const (
	ExecutableAttribute      = "Executable"
	OwnerAttribute           = "Owner"
	OwnerDNAttribute         = "OwnerDN"
	OwnerGroupAttribute      = "OwnerGroup"
	VOAttribute              = "VirtualOrganization"
	CPUTimeAttribute         = "CPUTime"
	PlatformAttribute        = "Platform"
	SiteAttribute            = "Site"
	InputDataAttribute       = "InputData"
	JobPathAttribute         = "JobPath"
	JobNameAttribute         = "JobName"
	JobGroupAttribute        = "JobGroup"
	JobTypeAttribute         = "JobType"
	PriorityAttribute        = "Priority"
	RequirementsAttribute    = "JobRequirements"
	CompatiblePlatformsField = "Platforms"
	SitesField               = "Sites"
)

// ValidationError is an admission failure. The job is still recorded, in Failed status
// with MinorStatus as the reason.
type ValidationError struct {
	MinorStatus string
}

func (e *ValidationError) Error() string {
	return e.MinorStatus
}

func descriptionError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{MinorStatus: status.DescriptionErrorMinorPrefix + ": " + fmt.Sprintf(format, args...)}
}

// Identity is who submitted a job.
type Identity struct {
	Owner      string
	OwnerDN    string
	OwnerGroup string
	VO         string
}

type Config struct {
	DefaultCPUTime        int64
	DefaultOptimizerChain status.OptimizerChain
}

// Attributes are the job attributes derived from a description.
type Attributes struct {
	Owner        string
	OwnerDN      string
	OwnerGroup   string
	VO           string
	JobName      string
	JobGroup     string
	JobType      string
	Site         string
	UserPriority int
	CPUTime      int64
	Platform     string
}

// Prepared is a description that passed admission.
type Prepared struct {
	Attributes Attributes
	// Original is the description as submitted, bracket normalised.
	Original string
	// Resolved is the description with defaults and identity filled in.
	Resolved     string
	Requirements string
	InputFiles   []string
	Chain        status.OptimizerChain
	// RequestedSites is the site list in the order the user gave it. Empty means any site.
	RequestedSites []string
	Platforms      []string
}

// submission is the state passed through the validators.
type submission struct {
	identity       Identity
	ad             *jdl.ClassAd
	cpuTime        int64
	platforms      []string
	requestedSites []string
}

// Preparer runs admission.
type Preparer struct {
	config    Config
	validator CompoundValidator[*submission]
}

func NewPreparer(config Config, resolver platform.Resolver) *Preparer {
	return &Preparer{
		config: config,
		validator: NewCompoundValidator[*submission](
			executableValidator{},
			ownerValidator{},
			cpuTimeValidator{defaultCPUTime: config.DefaultCPUTime},
			platformValidator{resolver: resolver},
			siteValidator{},
		),
	}
}

// Prepare parses and validates a description. Any failure is a *ValidationError.
func (p *Preparer) Prepare(description string, identity Identity) (*Prepared, error) {
	original := jdl.NormalizeBrackets(description)
	ad, err := jdl.Parse(original)
	if err != nil {
		return nil, descriptionError("%s", err)
	}
	sub := &submission{identity: identity, ad: ad}
	if err := p.validator.Validate(sub); err != nil {
		return nil, err
	}

	vo := sub.identity.VO
	attributes := Attributes{
		Owner:        sub.identity.Owner,
		OwnerDN:      sub.identity.OwnerDN,
		OwnerGroup:   sub.identity.OwnerGroup,
		VO:           vo,
		JobName:      ad.LookupDefault(JobNameAttribute, "Unknown"),
		JobGroup:     ad.LookupDefault(JobGroupAttribute, vo),
		JobType:      ad.LookupDefault(JobTypeAttribute, "User"),
		Site:         SiteExpression(sub.requestedSites),
		UserPriority: 1,
		CPUTime:      sub.cpuTime,
		Platform:     strings.Join(sub.platforms, ","),
	}
	priority, ok, err := ad.GetInt(PriorityAttribute)
	if err != nil {
		return nil, descriptionError("%s", err)
	}
	if ok {
		attributes.UserPriority = int(priority)
	}

	chain := status.ParseOptimizerChain(strings.Join(ad.GetList(JobPathAttribute), ","))
	if len(chain) == 0 {
		chain = p.config.DefaultOptimizerChain
	}
	if len(chain) == 0 {
		return nil, descriptionError("no optimizer chain and no default configured")
	}
	ad.SetList(JobPathAttribute, chain)

	inputFiles := make([]string, 0)
	for _, lfn := range ad.GetList(InputDataAttribute) {
		inputFiles = append(inputFiles, strings.TrimPrefix(strings.TrimSpace(lfn), "LFN:"))
	}
	inputFiles = util.UniqueNonBlank(inputFiles)

	reqs := requirements(attributes, sub).String()
	ad.Set(RequirementsAttribute, jdl.Value{Kind: jdl.AdValue, Raw: reqs})

	return &Prepared{
		Attributes:     attributes,
		Original:       original,
		Resolved:       ad.String(),
		Requirements:   reqs,
		InputFiles:     inputFiles,
		Chain:          chain,
		RequestedSites: sub.requestedSites,
		Platforms:      sub.platforms,
	}, nil
}

// SiteExpression is the stored form of a requested site list.
func SiteExpression(sites []string) string {
	sites = util.UniqueNonBlank(sites)
	if len(sites) == 0 {
		return AnySite
	}
	return strings.Join(sites, ",")
}

func requirements(attributes Attributes, sub *submission) *jdl.ClassAd {
	reqs := jdl.New()
	reqs.SetString(OwnerDNAttribute, attributes.OwnerDN)
	reqs.SetString(OwnerGroupAttribute, attributes.OwnerGroup)
	reqs.SetString(VOAttribute, attributes.VO)
	reqs.SetInt(CPUTimeAttribute, attributes.CPUTime)
	reqs.SetList(CompatiblePlatformsField, sub.platforms)
	if len(sub.requestedSites) > 0 {
		reqs.SetList(SitesField, sub.requestedSites)
	}
	return reqs
}
