package dedupe

// Options tune the duplicate detector's tolerances.
type Options struct {
	// TimeToleranceMinutes is the start-time gap at which the time score
	// decays to zero.
	TimeToleranceMinutes float64 `yaml:"time_tolerance_minutes"`
	// NameMatchThreshold is the minimum normalized-Levenshtein similarity
	// for the name component to contribute at all.
	NameMatchThreshold float64 `yaml:"name_match_threshold"`
	// DurationToleranceMinutes is the duration gap at which the duration
	// score decays to zero.
	DurationToleranceMinutes float64 `yaml:"duration_tolerance_minutes"`
}

// Scenario names a tolerance preset.
type Scenario string

const (
	ScenarioStrict  Scenario = "strict"
	ScenarioNormal  Scenario = "normal"
	ScenarioLenient Scenario = "lenient"
)

// DefaultOptions returns the normal-scenario tolerances.
func DefaultOptions() Options {
	return Options{
		TimeToleranceMinutes:     5,
		NameMatchThreshold:       0.8,
		DurationToleranceMinutes: 2,
	}
}

// OptionsForScenario returns the preset for the named scenario. The presets
// move all tolerances in lockstep: strict <= normal <= lenient on the time
// and duration tolerances, strict >= normal >= lenient on the name
// threshold. Unknown scenarios fall back to normal.
func OptionsForScenario(s Scenario) Options {
	switch s {
	case ScenarioStrict:
		return Options{
			TimeToleranceMinutes:     2,
			NameMatchThreshold:       0.9,
			DurationToleranceMinutes: 1,
		}
	case ScenarioLenient:
		return Options{
			TimeToleranceMinutes:     10,
			NameMatchThreshold:       0.7,
			DurationToleranceMinutes: 5,
		}
	default:
		return DefaultOptions()
	}
}
