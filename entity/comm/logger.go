package comm

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "comm")
