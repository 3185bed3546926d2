package admission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/jobstate/jdl"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

var testIdentity = Identity{
	Owner:      "alice",
	OwnerDN:    "/DC=ch/DC=cern/CN=alice",
	OwnerGroup: "lhcb_user",
}

func testPreparer() *Preparer {
	return NewPreparer(
		Config{
			DefaultCPUTime:        86400,
			DefaultOptimizerChain: status.OptimizerChain{"JobPath", "JobSanity", "InputData", "JobScheduling"},
		},
		platform.NewStaticResolver(map[string][]string{"el9": {"el8"}}),
	)
}

func TestPrepare_Defaults(t *testing.T) {
	prepared, err := testPreparer().Prepare(`  [Executable = "/bin/echo";]  `, testIdentity)
	require.NoError(t, err)

	assert.Equal(t, `[Executable = "/bin/echo";]`, prepared.Original)
	assert.Equal(t, Attributes{
		Owner:        "alice",
		OwnerDN:      "/DC=ch/DC=cern/CN=alice",
		OwnerGroup:   "lhcb_user",
		VO:           "lhcb",
		JobName:      "Unknown",
		JobGroup:     "lhcb",
		JobType:      "User",
		Site:         AnySite,
		UserPriority: 1,
		CPUTime:      86400,
		Platform:     platform.AnyPlatform,
	}, prepared.Attributes)
	assert.Equal(t, status.OptimizerChain{"JobPath", "JobSanity", "InputData", "JobScheduling"}, prepared.Chain)
	assert.Empty(t, prepared.InputFiles)
	assert.Empty(t, prepared.RequestedSites)

	resolved, err := jdl.Parse(prepared.Resolved)
	require.NoError(t, err)
	cpu, _, err := resolved.GetInt(CPUTimeAttribute)
	require.NoError(t, err)
	assert.Equal(t, int64(86400), cpu)
	owner, _ := resolved.Lookup(OwnerAttribute)
	assert.Equal(t, "alice", owner)
	assert.True(t, resolved.Has(RequirementsAttribute))
	assert.Contains(t, prepared.Requirements, `OwnerGroup = "lhcb_user"`)
}

func TestPrepare_DescriptionValues(t *testing.T) {
	description := `[
		Executable = "run.sh";
		JobName = "analysis";
		JobType = "Production";
		Priority = 5;
		CPUTime = 3600;
		Platform = {"el9"};
		Site = {"LCG.CERN.ch", " ", "LCG.IN2P3.fr", "LCG.CERN.ch"};
		InputData = {"LFN:/lhcb/a", "/lhcb/b", "", "/lhcb/a"};
		JobPath = "JobPath, JobSanity ,JobScheduling";
		VirtualOrganization = "lhcb";
	]`
	prepared, err := testPreparer().Prepare(description, testIdentity)
	require.NoError(t, err)

	assert.Equal(t, "analysis", prepared.Attributes.JobName)
	assert.Equal(t, "Production", prepared.Attributes.JobType)
	assert.Equal(t, 5, prepared.Attributes.UserPriority)
	assert.Equal(t, int64(3600), prepared.Attributes.CPUTime)
	assert.Equal(t, "el8,el9", prepared.Attributes.Platform)
	assert.Equal(t, "LCG.CERN.ch,LCG.IN2P3.fr", prepared.Attributes.Site)
	assert.Equal(t, []string{"LCG.CERN.ch", "LCG.IN2P3.fr"}, prepared.RequestedSites)
	assert.Equal(t, []string{"/lhcb/a", "/lhcb/b"}, prepared.InputFiles)
	assert.Equal(t, status.OptimizerChain{"JobPath", "JobSanity", "JobScheduling"}, prepared.Chain)
	assert.Equal(t, strings.TrimSpace(description), prepared.Original)
}

func TestPrepare_ValidationErrors(t *testing.T) {
	tests := map[string]struct {
		description string
		identity    Identity
		prefix      string
	}{
		"unparseable": {
			description: `[Executable = "x`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"missing executable": {
			description: `[JobName = "x";]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"owner mismatch": {
			description: `[Executable = "x"; Owner = "bob";]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"group mismatch": {
			description: `[Executable = "x"; OwnerGroup = "lhcb_prod";]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"vo mismatch": {
			description: `[Executable = "x"; VirtualOrganization = "atlas";]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"submitter vo does not match group": {
			description: `[Executable = "x";]`,
			identity:    Identity{Owner: "alice", OwnerGroup: "lhcb_user", VO: "atlas"},
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"missing owner": {
			description: `[Executable = "x";]`,
			identity:    Identity{OwnerGroup: "lhcb_user"},
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"no vo": {
			description: `[Executable = "x";]`,
			identity:    Identity{Owner: "alice", OwnerGroup: "nogroupprefix"},
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"bad cpu time": {
			description: `[Executable = "x"; CPUTime = "forever";]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"negative cpu time": {
			description: `[Executable = "x"; CPUTime = -1;]`,
			identity:    testIdentity,
			prefix:      status.DescriptionErrorMinorPrefix,
		},
		"unknown platform": {
			description: `[Executable = "x"; Platform = {"el9", "solaris"};]`,
			identity:    testIdentity,
			prefix:      status.OSCompatibilityMinorPrefix,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := testPreparer().Prepare(tc.description, tc.identity)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.True(t, strings.HasPrefix(validationErr.MinorStatus, tc.prefix), validationErr.MinorStatus)
		})
	}
}

func TestPrepare_ExplicitVO(t *testing.T) {
	id := Identity{Owner: "alice", OwnerGroup: "nogroupprefix", VO: "dteam"}
	prepared, err := testPreparer().Prepare(`[Executable = "x";]`, id)
	require.NoError(t, err)
	assert.Equal(t, "dteam", prepared.Attributes.VO)
}

func TestPrepare_AnySite(t *testing.T) {
	prepared, err := testPreparer().Prepare(`[Executable = "x"; Site = {"ANY", "LCG.CERN.ch"};]`, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, AnySite, prepared.Attributes.Site)
	assert.Empty(t, prepared.RequestedSites)
}

func TestPrepare_IsRepeatable(t *testing.T) {
	p := testPreparer()
	description := `[Executable = "x"; Site = "LCG.CERN.ch";]`
	first, err := p.Prepare(description, testIdentity)
	require.NoError(t, err)
	second, err := p.Prepare(first.Original, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSiteExpression(t *testing.T) {
	assert.Equal(t, AnySite, SiteExpression(nil))
	assert.Equal(t, AnySite, SiteExpression([]string{" ", ""}))
	assert.Equal(t, "A,B", SiteExpression([]string{"A", "B", "A"}))
}

type failingValidator struct{ calls *int }

func (v failingValidator) Validate(obj int) error {
	*v.calls++
	return &ValidationError{MinorStatus: "nope"}
}

func TestCompoundValidator_StopsAtFirstFailure(t *testing.T) {
	calls := 0
	v := NewCompoundValidator[int](failingValidator{&calls}, failingValidator{&calls})
	assert.Error(t, v.Validate(1))
	assert.Equal(t, 1, calls)
}
