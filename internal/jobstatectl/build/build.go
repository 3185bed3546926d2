package build

// Set at link time through -ldflags "-X ...".
var (
	ReleaseVersion = "dev"
	GitCommit      = "unknown"
	BuildTime      = "unknown"
	GoVersion      = "unknown"
)
