package storage

import "fmt"

// Layout groups the sandboxes the gateway works in. Streams holds published
// HLS output served over HTTP; Scratch holds transient fetch and decrypt
// workspace that is wiped on startup and swept while running.
type Layout struct {
	Root    *Sandbox
	Streams *Sandbox
	Scratch *Sandbox
}

// NewLayout builds the sandbox layout under baseDir. streamsDir and
// scratchDir are directory names relative to baseDir.
func NewLayout(baseDir, streamsDir, scratchDir string) (*Layout, error) {
	root, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	streams, err := root.SubSandbox(streamsDir)
	if err != nil {
		return nil, fmt.Errorf("creating streams sandbox: %w", err)
	}

	scratch, err := root.SubSandbox(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("creating scratch sandbox: %w", err)
	}

	return &Layout{
		Root:    root,
		Streams: streams,
		Scratch: scratch,
	}, nil
}
