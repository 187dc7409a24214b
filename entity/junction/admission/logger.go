package admission

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "admission")
