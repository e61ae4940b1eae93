package build

// DeploymentType selects which logging hooks are compiled in.
type DeploymentType byte

const (
	// Development builds log to stdout from unit tests and to the
	// rotator when a sub-logger constructor is provided.
	Development DeploymentType = iota

	// Production builds only log through the supplied sub-logger
	// constructor.
	Production
)

// String returns the name of the deployment.
func (d DeploymentType) String() string {
	switch d {
	case Development:
		return "dev"
	case Production:
		return "prod"
	default:
		return "unknown"
	}
}
