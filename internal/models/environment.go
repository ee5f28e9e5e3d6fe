package models

// Environment is the class a deployment label resolves to. Sizing and
// networking decisions branch on the class, never on the raw label.
type Environment string

const (
	// EnvironmentDevelopment is the dev class
	EnvironmentDevelopment Environment = "development"
	// EnvironmentStaging is the staging class
	EnvironmentStaging Environment = "staging"
	// EnvironmentProduction is the production class
	EnvironmentProduction Environment = "production"
)

// IsValid checks if the environment class is one of the known values
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction:
		return true
	default:
		return false
	}
}

// String returns the string representation of the environment class
func (e Environment) String() string {
	return string(e)
}

// Strategy is the compute strategy a batch job runs on
type Strategy string

const (
	// StrategyEC2 runs jobs on the on-demand EC2 pool
	StrategyEC2 Strategy = "EC2"
	// StrategyFargateSpot runs jobs on the Fargate Spot pool
	StrategyFargateSpot Strategy = "FGS"
)

// IsValid checks if the strategy value is valid
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyEC2, StrategyFargateSpot:
		return true
	default:
		return false
	}
}

// String returns the string representation of the strategy
func (s Strategy) String() string {
	return string(s)
}
