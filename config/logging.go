package config

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Level parses LogLevel.
func (c Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// NewLogger builds a logger writing to out with the configured level and
// format.
func (c Config) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log, nil
}
