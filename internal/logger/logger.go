package logger

import (
	"io"
	"os"

	"github.com/glmanhtu/PapyrusViz-sub000/config"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logger from the log section of the config.
func Init(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	writers := []io.Writer{os.Stdout}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
		if err != nil {
			log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
			// Continue with stdout only.
		} else {
			writers = append(writers, file)
			log.Infof("Logging additionally to file: %s", cfg.File)
		}
	}
	log.SetOutput(io.MultiWriter(writers...))

	log.Info("Logger initialized")
	return nil
}
