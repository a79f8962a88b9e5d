package mainboilerplate

import (
	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
	Caller bool   `long:"caller" env:"CALLER" description:"Include the calling function and file of each log event"`
}

// InitLog configures the standard logger. An unknown level is fatal.
func InitLog(cfg LogConfig) {
	var lvl, err = log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "level": cfg.Level}).Fatal("unrecognized log level")
	}
	log.SetLevel(lvl)
	log.SetReportCaller(cfg.Caller)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	default:
		log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
}
