package utils

import (
	"sync/atomic"
)

var requestSeq atomic.Int64

// NextRequestID 返回进程内单调递增的序号，请求日志和辅助任务共用
func NextRequestID() int64 {
	return requestSeq.Add(1)
}
