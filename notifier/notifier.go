package notifier

import "context"

// Release describes a newly submitted plugin version.
type Release struct {
	PluginName  string
	Author      string
	Description string
	ImageURL    string
	VersionName string
}

// Notifier publishes releases to an external channel. Implementations log
// their own failures; publishing never fails a submission.
type Notifier interface {
	Announce(ctx context.Context, release Release)
}

type Noop struct{}

func (Noop) Announce(context.Context, Release) {}
