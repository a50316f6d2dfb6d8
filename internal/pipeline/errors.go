package pipeline

import "fmt"

// ConfigurationError marks a missing or invalid required input. Raised
// before any remote contact is attempted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// LocalToolError marks a required local capability that is absent or
// unusable (unreadable ssh key, unwritable workspace).
type LocalToolError struct {
	Tool string
	Err  error
}

func (e *LocalToolError) Error() string {
	return fmt.Sprintf("local tool %s unavailable: %v", e.Tool, e.Err)
}

func (e *LocalToolError) Unwrap() error { return e.Err }

// RemoteUnreachableError marks a transport or authentication failure
// against the target host.
type RemoteUnreachableError struct {
	Host string
	Err  error
}

func (e *RemoteUnreachableError) Error() string {
	return fmt.Sprintf("remote host %s unreachable: %v", e.Host, e.Err)
}

func (e *RemoteUnreachableError) Unwrap() error { return e.Err }

// ProvisioningError marks a remote install or configuration step that
// returned failure.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning step %s failed: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ValidationError marks a post-deploy health or reachability check that
// failed. Internal checks are fatal; the external reachability probe is
// downgraded to a warning by the pipeline.
type ValidationError struct {
	Check string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation check %s failed: %v", e.Check, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StageError wraps a fatal stage failure with the stage name so the CLI can
// point at where the run halted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
