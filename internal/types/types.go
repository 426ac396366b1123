package types

import "time"

// Command is a subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is added on top of the parent environment.
	Env []string
}

// With returns a copy of c with extra trailing arguments.
func (c Command) With(args ...string) Command {
	out := c
	out.Args = append(append([]string(nil), c.Args...), args...)
	return out
}

type VideoInfo struct {
	FPS float64
	// Frames is the decoded frame count, or -1 when the prober could not tell.
	Frames int
}

type StageTiming struct {
	Stage    string
	Duration time.Duration
	Detail   string
}

type ViewsResult struct {
	Prompt         string
	UsedPrompt     string
	PromptFallback bool
	VideoURI       string
	Frames         []string
	Stages         []StageTiming
}

type SplatResult struct {
	Views       int
	AssetPath   string
	AssetBytes  int
	ViewerBuilt bool
	Stages      []StageTiming
}
