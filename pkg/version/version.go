package version

// Set at build time with -ldflags "-X github.com/vvoland/vidchat/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)
