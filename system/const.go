package system

// Version is the current version of filebay. It is replaced at build time
// using -ldflags "-X github.com/filebay/filebay/system.Version=...".
var Version = "develop"
