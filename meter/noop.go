package meter

import "github.com/ineyio/flowgate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ flowgate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnStart(flowgate.StartEvent)   {}
func (m *NoopMeter) OnResult(flowgate.ResultEvent) {}
