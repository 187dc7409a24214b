package dcl

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "dcl")
