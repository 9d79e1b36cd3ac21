package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var dispatcher = false
var rest = false
var push = false
var offline = false
var terminal = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Dispatcher returns true if the dispatcher event loop should log.
func Dispatcher() bool {
	return dispatcher
}

// DispatcherLogger returns a logger for the dispatcher package.
func DispatcherLogger() Logger {
	return makeFlaggableLogger(dispatcher, Fields{"layer": "dispatcher"})
}

// REST returns true if every request and response exchanged with the
// backend should be logged.
func REST() bool {
	return rest
}

// RESTLogger returns a logger for the request/response client.
func RESTLogger() Logger {
	return makeFlaggableLogger(rest, Fields{"layer": "rest"})
}

// Push returns true if push channel frames should be logged.
func Push() bool {
	return push
}

// PushLogger returns a logger for the push channel client.
func PushLogger() Logger {
	return makeFlaggableLogger(push, Fields{"layer": "push"})
}

// Offline returns true if the offline backend should log.
func Offline() bool {
	return offline
}

// OfflineLogger returns a logger for the offline backend.
func OfflineLogger() Logger {
	return makeFlaggableLogger(offline, Fields{"layer": "offline"})
}

// Terminal returns true if the terminal should log.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the terminal.
func TerminalLogger() Logger {
	return makeFlaggableLogger(terminal, Fields{"layer": "terminal"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr and opens
// logDest, a file path or a file descriptor number, as the log destination.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "cpuview-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if logstr == "" {
		logstr = "dispatcher"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "dispatcher":
			dispatcher = true
		case "rest":
			rest = true
		case "push":
			push = true
		case "offline":
			offline = true
		case "terminal":
			terminal = true
		default:
			return fmt.Errorf("unknown log layer %q", logcmd)
		}
	}
	return nil
}

// Close closes the log destination opened by Setup.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

var textFormatterInstance = &textFormatter{}

// textFormatter writes one line per entry: timestamp, level, layer, message
// and the remaining fields.
type textFormatter struct{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteByte(' ')
	b.WriteString(entry.Level.String())
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(&b, " %v", layer)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "layer" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
