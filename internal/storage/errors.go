package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNoSuchKey 判断错误是否表示对象不存在。Bucket 不存在不算在内，
// 那是部署问题，不能当作素材被删除处理。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NotFound":
			return true
		case "NoSuchBucket":
			return false
		}
	}
	// 经由代理时错误可能只剩字符串。
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "nosuchbucket") || strings.Contains(msg, "bucket does not exist") {
		return false
	}
	return strings.Contains(msg, "nosuchkey") || strings.Contains(msg, "key does not exist")
}
