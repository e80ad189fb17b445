package collections

import "github.com/tliron/commonlog"

var (
	log            = commonlog.GetLogger("jcontainers.collections")
	autoreleaseLog = commonlog.GetLogger("jcontainers.autorelease")
)
