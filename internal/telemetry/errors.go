package telemetry

import "fmt"

// ExportError is a failed record-file write. History is untouched, so the
// next export retries with everything.
type ExportError struct {
	Op   string
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// PublishError is a failed delivery to one transport.
type PublishError struct {
	Transport string
	Topic     string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s %s: %v", e.Transport, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
