package kcp

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type KcpLogType int

// KcpLogMask is the mask new engines start with.
var KcpLogMask int64

func SetKcpLogMask(mask KcpLogType) {
	atomic.StoreInt64(&KcpLogMask, int64(mask))
}

const (
	IKCP_LOG_OUTPUT    KcpLogType = 1
	IKCP_LOG_INPUT     KcpLogType = 2
	IKCP_LOG_SEND      KcpLogType = 4
	IKCP_LOG_RECV      KcpLogType = 8
	IKCP_LOG_IN_DATA   KcpLogType = 16
	IKCP_LOG_IN_ACK    KcpLogType = 32
	IKCP_LOG_IN_PROBE  KcpLogType = 64
	IKCP_LOG_IN_WINS   KcpLogType = 128
	IKCP_LOG_OUT_DATA  KcpLogType = 256
	IKCP_LOG_OUT_ACK   KcpLogType = 512
	IKCP_LOG_OUT_PROBE KcpLogType = 1024
	IKCP_LOG_OUT_WINS  KcpLogType = 2048

	IKCP_LOG_ALL KcpLogType = 1<<12 - 1
)

var (
	logMap = map[KcpLogType]string{
		IKCP_LOG_OUTPUT:    "output",
		IKCP_LOG_INPUT:     "input",
		IKCP_LOG_SEND:      "send",
		IKCP_LOG_RECV:      "recv",
		IKCP_LOG_IN_DATA:   "in_data",
		IKCP_LOG_IN_ACK:    "in_ack",
		IKCP_LOG_IN_PROBE:  "in_probe",
		IKCP_LOG_IN_WINS:   "in_wins",
		IKCP_LOG_OUT_DATA:  "out_data",
		IKCP_LOG_OUT_ACK:   "out_ack",
		IKCP_LOG_OUT_PROBE: "out_probe",
		IKCP_LOG_OUT_WINS:  "out_wins",
	}
)

func (t KcpLogType) String() string {
	if s, ok := logMap[t]; ok {
		return s
	}
	return "mixed"
}

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelSilent
)

var (
	logLevel = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	logger   atomic.Pointer[zap.Logger]
)

func init() {
	SetKcpLogMask(IKCP_LOG_ALL)
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), logLevel)
	logger.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named("kcp"))
}

func SetLogLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		logLevel.SetLevel(zapcore.DebugLevel)
	case LogLevelInfo:
		logLevel.SetLevel(zapcore.InfoLevel)
	case LogLevelWarn:
		logLevel.SetLevel(zapcore.WarnLevel)
	case LogLevelError:
		logLevel.SetLevel(zapcore.ErrorLevel)
	default:
		// above fatal, nothing gets through
		logLevel.SetLevel(zapcore.FatalLevel + 1)
	}
}

func GetLogLevel() LogLevel {
	switch l := logLevel.Level(); {
	case l <= zapcore.DebugLevel:
		return LogLevelDebug
	case l == zapcore.InfoLevel:
		return LogLevelInfo
	case l == zapcore.WarnLevel:
		return LogLevelWarn
	case l == zapcore.ErrorLevel:
		return LogLevelError
	}
	return LogLevelSilent
}

// SetLogger replaces the package logger. Engines created afterwards log
// through it unless given their own with (*IKcp).SetLogger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func Logger() *zap.Logger {
	return logger.Load()
}

func Debug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}
