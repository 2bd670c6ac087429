package notifier

import "github.com/kagehashi-labs/arcadewatchd/internal/logging"

// LogNotifier reports events through the structured logger only. Useful
// for development and for cabinets with no LED or D-Bus listener wired up.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logging.Named("notifier.log")}
}

func (n *LogNotifier) Success(quick bool, message string) {
	n.log.Info().Bool("quick", quick).Msg(message)
}
func (n *LogNotifier) Error(message string) {
	n.log.Error().Msg(message)
}
func (n *LogNotifier) Emergency(message string) {
	n.log.Error().Str(logging.FieldEvent, "emergency").Msg(message)
}
func (n *LogNotifier) StartShutdown() {
	n.log.Info().Msg("shutdown starting")
}
