package core

// Story names used by ignore lists and story states.
const (
	StoryHubblesLaw = "hubbles_law"
)
