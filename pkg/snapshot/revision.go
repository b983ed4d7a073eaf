package snapshot

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// currentRevision returns the current git revision, or empty when no
// repository is present. Absence is not an error; the revision is an
// optional convenience for RestoreByRevision.
func currentRevision() string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
