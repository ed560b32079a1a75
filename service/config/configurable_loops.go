package config

type ConfigurableLoop string

const (
	ConfigurableLoopPendingJobs    ConfigurableLoop = "pendingJobs"
	ConfigurableLoopProcessingJobs ConfigurableLoop = "processingJobs"
)

// LoopEnabled is false for loops listed in DisabledLoops.
func (cfg *Config) LoopEnabled(loop ConfigurableLoop) bool {
	for _, l := range cfg.DisabledLoops {
		if ConfigurableLoop(l) == loop {
			return false
		}
	}
	return true
}
