package persist

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("jcontainers.persist")
