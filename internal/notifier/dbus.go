package notifier

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
)

const (
	// DBusInterface is the D-Bus interface this daemon exports status
	// signals on, for a desktop widget or physical-LED bridge to subscribe.
	DBusInterface = "org.arcadewatch.Notify"
	// DBusObjectPath is the object path status signals are emitted from.
	DBusObjectPath = "/org/arcadewatch/Notify"
	// DBusServiceNameBase is the base well-known bus name.
	DBusServiceNameBase = "org.arcadewatch.Notify"
)

// DBusServiceName is the bus name actually requested. Tests run under a
// unique suffix so repeated runs on the same session bus don't collide.
var DBusServiceName string

func init() {
	if os.Getenv("ARCADEWATCHD_TEST") == "1" {
		DBusServiceName = fmt.Sprintf("%s.test_%d_%d", DBusServiceNameBase, os.Getpid(), time.Now().UnixNano()%10000)
	} else {
		DBusServiceName = DBusServiceNameBase
	}
}

// DBusNotifier emits a StatusChanged signal for every Notifier event. It
// implements Notifier directly rather than through a retry channel: D-Bus
// Emit calls are local socket writes to the session bus and fail only when
// the bus itself is gone, a condition no amount of retrying fixes.
type DBusNotifier struct {
	mu      sync.RWMutex
	conn    *dbus.Conn
	started bool
	log     logging.Logger
}

// NewDBusNotifier creates a DBusNotifier. Call Start before using it.
func NewDBusNotifier() *DBusNotifier {
	return &DBusNotifier{log: logging.Named("notifier.dbus")}
}

// Start connects to the session bus, requests DBusServiceName, and
// exports the introspection data describing the StatusChanged signal.
func (n *DBusNotifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}

	reply, err := conn.RequestName(DBusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		n.log.Warn().Msgf("D-Bus name %s already taken, continuing as non-owner", DBusServiceName)
	}

	node := &introspect.Node{
		Name: DBusObjectPath,
		Interfaces: []introspect.Interface{
			{
				Name: DBusInterface,
				Signals: []introspect.Signal{
					{
						Name: "StatusChanged",
						Args: []introspect.Arg{
							{Name: "kind", Type: "s"},
							{Name: "message", Type: "s"},
						},
					},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), DBusObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return err
	}

	n.conn = conn
	n.started = true
	n.log.Info().Msg("D-Bus notifier started")
	return nil
}

// Stop releases the bus name and closes the connection.
func (n *DBusNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started || n.conn == nil {
		return
	}
	if _, err := n.conn.ReleaseName(DBusServiceName); err != nil {
		n.log.Warn().Err(err).Msg("failed to release D-Bus name")
	}
	if err := n.conn.Close(); err != nil {
		n.log.Warn().Err(err).Msg("failed to close D-Bus connection")
	}
	n.conn = nil
	n.started = false
}

func (n *DBusNotifier) emit(kind, message string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.started || n.conn == nil {
		return
	}
	if err := n.conn.Emit(DBusObjectPath, DBusInterface+".StatusChanged", kind, message); err != nil {
		n.log.Error().Err(err).Str(logging.FieldEvent, kind).Msg("failed to emit D-Bus signal")
	}
}

func (n *DBusNotifier) Success(quick bool, message string) {
	kind := "success"
	if quick {
		kind = "success_quick"
	}
	n.emit(kind, message)
}
func (n *DBusNotifier) Error(message string)     { n.emit("error", message) }
func (n *DBusNotifier) Emergency(message string) { n.emit("emergency", message) }
func (n *DBusNotifier) StartShutdown()           { n.emit("start_shutdown", "") }
