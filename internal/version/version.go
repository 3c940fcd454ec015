package version

// Version is overridden at build time with -ldflags "-X catchall/internal/version.Version=...".
var Version = "dev"
