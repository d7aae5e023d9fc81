package release

import (
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

// Version is the version reported to editors in the initialize reply.
func Version() string {
	return versioninfo.Version
}

// Describe is the long form printed by --version, with the commit the binary
// was built from.
func Describe() string {
	rev := versioninfo.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if versioninfo.DirtyBuild {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", versioninfo.Short(), rev)
}
