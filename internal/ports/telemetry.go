package ports

type Telemetry interface {
	ObserveTransition(kind, outcome string)
	ObserveReload(outcome string)
	ObserveAutoPublish(outcome string)
}

type NoopTelemetry struct{}

func (NoopTelemetry) ObserveTransition(string, string) {}
func (NoopTelemetry) ObserveReload(string)             {}
func (NoopTelemetry) ObserveAutoPublish(string)        {}
